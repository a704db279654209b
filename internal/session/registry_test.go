package session

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct{ written [][]byte }

func (f *fakeChannel) Write(frame []byte) error {
	f.written = append(f.written, frame)
	return nil
}

func TestRegisterAssignsMonotonicIDs(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	s1 := r.Register(100, &fakeChannel{})
	s2 := r.Register(200, &fakeChannel{})

	require.Equal(t, uint32(1), s1.SessionID)
	require.Equal(t, uint32(2), s2.SessionID)
	require.Equal(t, 2, r.Len())
}

func TestGetAndRemove(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s := r.Register(100, &fakeChannel{})

	got, ok := r.Get(s.SessionID)
	require.True(t, ok)
	require.Same(t, s, got)

	r.Remove(s.SessionID)
	_, ok = r.Get(s.SessionID)
	require.False(t, ok)
	require.Equal(t, 0, r.Len())
}

func TestGetUnknownSession(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_, ok := r.Get(999)
	require.False(t, ok)
}

func TestValidateAndAdvance(t *testing.T) {
	s := &Session{SessionID: 1}

	require.Equal(t, SeqAccept, s.ValidateAndAdvance(1))
	require.Equal(t, uint64(1), s.LastSeqNo())

	require.Equal(t, SeqAccept, s.ValidateAndAdvance(2))
	require.Equal(t, SeqDuplicate, s.ValidateAndAdvance(2))
	require.Equal(t, SeqDuplicate, s.ValidateAndAdvance(1))
	require.Equal(t, SeqGap, s.ValidateAndAdvance(10))

	// lastSeqNo unchanged by the rejected duplicate/gap attempts.
	require.Equal(t, uint64(2), s.LastSeqNo())
}

func TestValidateAndAdvanceSequenceOfAccepts(t *testing.T) {
	s := &Session{SessionID: 1}
	for i := uint64(1); i <= 5; i++ {
		require.Equal(t, SeqAccept, s.ValidateAndAdvance(i))
	}
	require.Equal(t, uint64(5), s.LastSeqNo())
}
