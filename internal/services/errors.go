package services

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Sentinels returned (wrapped) by the services. Handlers map them to status
// codes with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrDispatch    = errors.New("dispatch failed")
	ErrPersistence = errors.New("persistence failed")
)

// storeErr classifies a repository error.
func storeErr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(ErrNotFound, msg)
	}
	return errors.Wrapf(ErrPersistence, "%s: %v", msg, err)
}
