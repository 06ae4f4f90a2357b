package kafka

import "time"

const (
	TopicBalanceEvents = "loyalty.balance.events"
	TopicDLQSuffix     = ".dlq"

	PublishTimeout = 5 * time.Second

	OriginHeaderKey = "x-origin-instance"
	ErrorHeaderKey  = "x-error"

	SchemaVersion = 1
)
