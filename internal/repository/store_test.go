package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

func TestRollbackError(t *testing.T) {
	txErr := errors.New("balance check")
	assert.Same(t, txErr, rollbackError(txErr, nil))

	err := rollbackError(domain.ErrInsufficientBalance, errors.New("conn closed"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "conn closed")

	err = rollbackError(domain.ErrNotFound, errors.New("conn closed"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodeNotFound, domain.Code(err))
}
