package simengine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxcam/internal/domain"
)

func TestInitializeFailsConfiguredTimes(t *testing.T) {
	engine := New(2, zerolog.Nop())
	paths := domain.ModelPaths{AcousticModel: "/models/en-us"}

	for i := 0; i < 2; i++ {
		err := engine.Initialize(context.Background(), paths)
		var initErr *domain.InitError
		require.ErrorAs(t, err, &initErr)
		assert.Equal(t, "/models/en-us", initErr.Path)
	}
	require.NoError(t, engine.Initialize(context.Background(), paths))
	require.NoError(t, engine.StartListening("commands"))
	assert.True(t, engine.Listening())
}

func TestExecDrivesListener(t *testing.T) {
	engine := New(0, zerolog.Nop())
	listener := &recorder{}
	engine.SetListener(listener)

	handled, err := engine.Exec("say take photo")
	assert.True(t, handled)
	assert.ErrorIs(t, err, ErrNotListening)

	require.NoError(t, engine.Initialize(context.Background(), domain.ModelPaths{}))
	require.NoError(t, engine.StartListening("commands"))

	for _, line := range []string{"say score=-8000 take photo", "mumble", "hang", "error mic unplugged", "timeout"} {
		handled, err := engine.Exec(line)
		require.True(t, handled, line)
		require.NoError(t, err, line)
	}
	assert.Equal(t, []string{
		"begin", "partial:take", "end", "final:take photo:-8000:true",
		"begin", "end", "final::0:false",
		"begin", "end",
		"error:mic unplugged",
		"timeout",
	}, listener.snapshot())

	handled, err = engine.Exec("foreground")
	assert.False(t, handled)
	assert.NoError(t, err)

	_, err = engine.Exec("say score=loud photo")
	assert.Error(t, err)
}

func TestStopEndsListening(t *testing.T) {
	engine := New(0, zerolog.Nop())
	engine.SetListener(&recorder{})
	require.NoError(t, engine.Initialize(context.Background(), domain.ModelPaths{}))
	require.NoError(t, engine.StartListening("commands"))
	require.NoError(t, engine.Stop())
	require.NoError(t, engine.Cancel())

	assert.False(t, engine.Listening())
	assert.ErrorIs(t, engine.Say("photo", 0), ErrNotListening)

	require.NoError(t, engine.Shutdown())
	assert.Error(t, engine.StartListening("commands"))
	assert.Equal(t, 1, engine.Starts())
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnBeginSpeech()        { r.add("begin") }
func (r *recorder) OnEndSpeech()          { r.add("end") }
func (r *recorder) OnPartial(text string) { r.add("partial:" + text) }
func (r *recorder) OnError(err error)     { r.add("error:" + err.Error()) }
func (r *recorder) OnEngineTimeout()      { r.add("timeout") }
func (r *recorder) OnFinal(text string, score int, has bool) {
	r.add(fmt.Sprintf("final:%s:%d:%t", text, score, has))
}
