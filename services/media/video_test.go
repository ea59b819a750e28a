package media

import (
	"os"
	"path/filepath"
	"testing"

	"codequiz-publisher/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestResolveAudioRequiresSomeAsset(t *testing.T) {
	g := &Generator{}

	// no track, no tap sound: a silent video is not a deliverable
	_, _, err := g.resolveAudio(nil)
	require.Error(t, err)
	require.Equal(t, errutil.KindMediaGeneration, errutil.KindOf(err))

	// a track row pointing at a vanished file degrades to taps only,
	// but with no tap sound either the same contract applies
	_, _, err = g.resolveAudio(&BackgroundMusic{FilePath: filepath.Join(t.TempDir(), "gone.mp3")})
	require.Error(t, err)
	require.Equal(t, errutil.KindMediaGeneration, errutil.KindOf(err))
}

func TestResolveAudioToleratesMissingTrack(t *testing.T) {
	tap := filepath.Join(t.TempDir(), "tap.wav")
	require.NoError(t, os.WriteFile(tap, []byte("RIFF"), 0o644))
	g := &Generator{tapSound: tap}

	music, got, err := g.resolveAudio(&BackgroundMusic{FilePath: "/nonexistent/track.mp3"})
	require.NoError(t, err)
	require.Empty(t, music)
	require.Equal(t, tap, got)
}

func TestResolveAudioPicksExistingTrack(t *testing.T) {
	dir := t.TempDir()
	track := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(track, []byte("ID3"), 0o644))
	g := &Generator{}

	music, tap, err := g.resolveAudio(&BackgroundMusic{FilePath: track})
	require.NoError(t, err)
	require.Equal(t, track, music)
	require.Empty(t, tap)
}
