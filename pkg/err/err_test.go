package errprocess

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"video_clip_service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logger.Log = logger.Initialize("errprocess_test", os.TempDir())
	os.Exit(m.Run())
}

func TestIsFatal(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsFatal(Fatal(base)))
	assert.False(t, IsFatal(Transient(base)))
	// unclassified errors stay retryable
	assert.False(t, IsFatal(base))
	assert.False(t, IsFatal(nil))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("stage failed: %w", Fatal(errors.New("bad input")))
	assert.True(t, IsFatal(err))
}

func TestClassifiedUnwraps(t *testing.T) {
	base := errors.New("boom")
	assert.ErrorIs(t, Fatal(base), base)
	assert.Equal(t, "boom", Transient(base).Error())
}

func TestFatalNilIsNil(t *testing.T) {
	assert.NoError(t, Fatal(nil))
	assert.NoError(t, Transient(nil))
}

func TestSetfReturnsFormattedError(t *testing.T) {
	err := Setf("video %d missing", 7)
	assert.EqualError(t, err, "video 7 missing")
}
