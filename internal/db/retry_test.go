package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Cedctf/foodbridge-sub000/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

// duplicateKeyError builds the error shape the driver returns for a unique index violation.
func duplicateKeyError(index, key string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: test.requests index: %s dup key: { : \"%s\" }", index, key),
	}}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	err := WithRetries(func() error {
		opCalled++
		return nil
	}, 3, IsMongoDuplicateKeyError)

	assert.NoError(t, err)
	assert.Equal(t, 1, opCalled)
}

func TestWithRetries_NonRetryableError(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("some other error")
	err := WithRetries(func() error {
		opCalled++
		return expectedErr
	}, 3, IsMongoDuplicateKeyError)

	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 1, opCalled)
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	err := WithRetries(func() error {
		opCalled++
		return duplicateKeyError("_id_", "X")
	}, 3, IsMongoDuplicateKeyError)

	require.Error(t, err)
	assert.True(t, IsMongoDuplicateKeyError(err))
	assert.Equal(t, 4, opCalled)
}

func TestTryNewID_CollisionResolves(t *testing.T) {
	originalHook := utils.NewSixIDHook
	defer func() { utils.NewSixIDHook = originalHook }()

	id1 := utils.SixID{1, 2, 3, 4, 5, 1}
	id2 := utils.SixID{1, 2, 3, 4, 5, 2}
	idsToReturn := []utils.SixID{id1, id1, id2}
	hookCalls := 0
	utils.NewSixIDHook = func() (utils.SixID, bool) {
		if hookCalls < len(idsToReturn) {
			id := idsToReturn[hookCalls]
			hookCalls++
			return id, true
		}
		return utils.SixID{}, false
	}

	inserted := map[utils.SixID]bool{id1: true}
	var opCalled int
	err := TryNewID(func() error {
		opCalled++
		id := utils.NewSixID()
		if inserted[id] {
			return duplicateKeyError("_id_", id.String())
		}
		inserted[id] = true
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, opCalled)
	assert.Equal(t, 3, hookCalls)
	assert.True(t, inserted[id2])
}

func TestTryNewID_DoesNotRetryConstraintViolations(t *testing.T) {
	var opCalled int
	err := TryNewID(func() error {
		opCalled++
		return duplicateKeyError(IndexRequestsApprovedPerFood, "F")
	})

	require.Error(t, err)
	assert.Equal(t, 1, opCalled)
	assert.Equal(t, IndexRequestsApprovedPerFood, DuplicateKeyIndex(err))
}

func TestDuplicateKeyIndex(t *testing.T) {
	assert.Equal(t, "", DuplicateKeyIndex(errors.New("boom")))
	assert.Equal(t, IndexRequestsFoodEmail, DuplicateKeyIndex(duplicateKeyError(IndexRequestsFoodEmail, "a@b.c")))

	cmdErr := mongo.CommandError{Code: 11000, Message: "E11000 duplicate key error collection: test.impact index: owner_id_unique dup key: { owner_id: \"u1\" }"}
	assert.True(t, IsMongoDuplicateKeyError(cmdErr))
	assert.Equal(t, IndexImpactOwner, DuplicateKeyIndex(cmdErr))

	wrapped := fmt.Errorf("insert failed: %w", duplicateKeyError("_id_", "X"))
	assert.True(t, IsMongoIDCollision(wrapped))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(duplicateKeyError("_id_", "X")))
}
