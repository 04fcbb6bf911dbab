// Package errors provides database error classification for the order store.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unknown database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeDuplicateKey represents a duplicate key constraint violation (MySQL 1062).
	ErrorTypeDuplicateKey
	// ErrorTypeConstraintViolation represents a foreign key constraint violation.
	ErrorTypeConstraintViolation
	// ErrorTypeInvalidJSON represents invalid JSON in the order items column.
	ErrorTypeInvalidJSON
	// ErrorTypeInvalidValue represents a NULL, truncated or too long value.
	ErrorTypeInvalidValue
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeDeadlock represents a deadlock or lock wait timeout.
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a database connection error.
	ErrorTypeConnectionError
)

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

type mysqlClass struct {
	typ     DatabaseErrorType
	message string
}

var mysqlCodes = map[uint16]mysqlClass{
	1062: {ErrorTypeDuplicateKey, "duplicate key constraint violation"},
	1451: {ErrorTypeConstraintViolation, "cannot delete/update record due to foreign key constraint"},
	1452: {ErrorTypeConstraintViolation, "foreign key constraint violation"},
	3140: {ErrorTypeInvalidJSON, "invalid JSON data"},
	3141: {ErrorTypeInvalidJSON, "invalid JSON data"},
	3143: {ErrorTypeInvalidJSON, "invalid JSON data"},
	1048: {ErrorTypeInvalidValue, "column cannot be null"},
	1265: {ErrorTypeInvalidValue, "invalid or truncated value"},
	1366: {ErrorTypeInvalidValue, "invalid or truncated value"},
	1406: {ErrorTypeInvalidValue, "data too long for column"},
	1205: {ErrorTypeDeadlock, "lock wait timeout exceeded"},
	1213: {ErrorTypeDeadlock, "deadlock detected"},
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"invalid connection",
	"bad connection",
	"can't connect",
	"dial tcp",
}

// ClassifyDBError classifies a GORM or MySQL error.
//
//	if dbErr := errors.ClassifyDBError(err); dbErr.Type == errors.ErrorTypeDuplicateKey {
//	    // payment for this order already recorded
//	}
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{Type: ErrorTypeNotFound, OriginalErr: err, Message: "record not found"}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		class, ok := mysqlCodes[mysqlErr.Number]
		if !ok {
			class = mysqlClass{ErrorTypeUnknown, "MySQL error"}
		}
		return &DatabaseError{Type: class.typ, OriginalErr: err, MySQLErrCode: mysqlErr.Number, Message: class.message}
	}

	if errors.Is(err, mysql.ErrInvalidConn) || isConnectionError(err.Error()) {
		return &DatabaseError{Type: ErrorTypeConnectionError, OriginalErr: err, Message: "database connection error"}
	}

	return &DatabaseError{Type: ErrorTypeUnknown, OriginalErr: err, Message: "unknown database error"}
}

func isConnectionError(errMsg string) bool {
	errMsg = strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}
	return false
}

func isType(err error, typ DatabaseErrorType) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == typ
}

// IsDuplicateKeyError checks if the error is a duplicate key constraint violation.
func IsDuplicateKeyError(err error) bool { return isType(err, ErrorTypeDuplicateKey) }

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsInvalidJSONError checks if the error is an invalid JSON error.
func IsInvalidJSONError(err error) bool { return isType(err, ErrorTypeInvalidJSON) }

// IsTransientError reports deadlocks and connection failures, which are
// worth surfacing as a temporarily unavailable store rather than a bug.
func IsTransientError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && (dbErr.Type == ErrorTypeDeadlock || dbErr.Type == ErrorTypeConnectionError)
}
