package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optin-backend/internal/models"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_WritesMatchSnapshot(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3Archiver(putter, "optin-archive")

	m := &models.Match{
		ID:           "m1",
		GroupID:      "g1",
		UserIDs:      []string{"alice", "bob"},
		MatchKey:     "g1:alice,bob:1:2",
		OverlapStart: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		OverlapEnd:   time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
	}
	require.NoError(t, a.Archive(context.Background(), m))

	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "optin-archive", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "matches/g1/m1.json", aws.ToString(putter.inputs[0].Key))

	var got models.Match
	require.NoError(t, json.Unmarshal(putter.bodies[0], &got))
	assert.Equal(t, m.MatchKey, got.MatchKey)
	assert.Equal(t, m.UserIDs, got.UserIDs)
}

func TestS3Archiver_WrapsErrors(t *testing.T) {
	a := NewS3Archiver(&fakePutter{err: errors.New("denied")}, "b")
	err := a.Archive(context.Background(), &models.Match{ID: "m1", GroupID: "g1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m1")
}
