package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackupToS3RejectsEmptyBucket(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)

	_, err := svc.BackupToS3(context.Background(), S3BackupConfig{})
	require.Error(t, err)
}
