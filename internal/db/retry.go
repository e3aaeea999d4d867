package db

import (
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryable decides whether a failed Operation should be attempted again.
type IsRetryable func(err error) bool

const DefaultMaxRetries = 3

const duplicateKeyCode = 11000

// Try runs op, retrying up to DefaultMaxRetries times on duplicate key errors.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// TryNewID runs op, retrying only when the insert collided on _id.
// Operations must generate a fresh id on every attempt.
func TryNewID(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoIDCollision)
}

// WithRetries runs op once plus up to maxRetries retries while retryable(err)
// holds, with a small incremental backoff.
func WithRetries(op Operation, maxRetries int, retryable IsRetryable) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !retryable(err) {
			break
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == duplicateKeyCode {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == duplicateKeyCode {
				return true
			}
		}
	}
	// findAndModify reports upsert conflicts as command errors
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(duplicateKeyCode) {
		return true
	}
	return false
}

var dupIndexPattern = regexp.MustCompile(`index: (\S+) dup key`)

// DuplicateKeyIndex returns the name of the index a duplicate key error was
// raised on, or "" when err is not a duplicate key error.
func DuplicateKeyIndex(err error) string {
	if !IsMongoDuplicateKeyError(err) {
		return ""
	}
	m := dupIndexPattern.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// IsMongoIDCollision reports a duplicate key error on the _id index.
func IsMongoIDCollision(err error) bool {
	return DuplicateKeyIndex(err) == "_id_"
}

// IsTransient reports network and timeout failures that are safe to retry at the transport layer.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}
