package action

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/opflow/pkg/schema"
)

func add(n int) Func[int, int] {
	return Run(func(_ context.Context, p int) (int, error) { return p + n, nil })
}

func TestChain_Sync(t *testing.T) {
	c := Join(NewChain[Void](), Run(func(context.Context, Void) (string, error) { return "1", nil }))
	c2 := Join(c, Run(func(_ context.Context, p string) (string, error) { return p + " 2 ", nil }))
	c3 := Join(c2, Run(func(_ context.Context, p string) (string, error) { return p + "3", nil }))
	pipeline := c3.Create()

	v, err := pipeline.Exec(ctx, Void{})
	require.NoError(t, err)
	assert.Equal(t, "1 2 3", v)

	r := pipeline.Do(ctx, Void{})
	assert.False(t, r.Suspended(), "a chain without awaited steps never suspends")
	assert.Equal(t, []Mode{JoinSync, JoinSync, JoinSync}, c3.Modes())
}

func TestChain_PassKeepsRunningValue(t *testing.T) {
	var observed []int
	logger := Effect(func(_ context.Context, p int) error {
		observed = append(observed, p)
		return nil
	})

	pipeline := Join(Pass(NewChain[int](), logger), add(1)).Create()

	v, err := pipeline.Exec(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, v)
	assert.Equal(t, []int{10}, observed)
}

func TestChain_PassDiscardsTypedResult(t *testing.T) {
	toString := Run(func(_ context.Context, p int) (string, error) { return strconv.Itoa(p), nil })

	pipeline := Join(Pass(Join(NewChain[int](), add(1)), toString), add(1)).Create()

	v, err := pipeline.Exec(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestChain_EmptyReturnsInput(t *testing.T) {
	v, err := NewChain[string]().Create().Exec(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "same", v)
}

func TestChain_JoinWaitPromotes(t *testing.T) {
	var rec recorder
	mark := func(s string) func(context.Context, Void) error {
		return func(context.Context, Void) error {
			rec.add(s)
			return nil
		}
	}
	seq := RunActions[Void](Effect(mark("1")), EffectAsync(mark("2")))

	c := JoinWait(NewChain[Void](), seq)
	c2 := AsyncJoin(c, Effect(mark("3")))
	c3 := AsyncJoin(c2, Run(func(context.Context, Void) (string, error) { return "1", nil }))
	c4 := AsyncJoin(c3, Run(func(_ context.Context, p string) (string, error) { return p + " 2 ", nil }))
	c5 := AsyncJoin(c4, RunAsync(func(_ context.Context, p string) (string, error) { return p + "3", nil }))
	pipeline := c5.Create()

	r := pipeline.Do(ctx, Void{})
	assert.True(t, r.Suspended(), "an awaited step makes every invocation suspended")

	v, err := Await(r)
	require.NoError(t, err)
	assert.Equal(t, "1 2 3", v)
	assert.Equal(t, []string{"1", "2", "3"}, rec.list())
	assert.Equal(t, []Mode{JoinAsync, JoinSync, JoinSync, JoinSync, JoinSync}, c5.Modes())
}

func TestChain_PassWaitPromotes(t *testing.T) {
	var rec recorder
	slowLog := EffectAsync(func(_ context.Context, p int) error {
		time.Sleep(2 * time.Millisecond)
		rec.add("saw " + strconv.Itoa(p))
		return nil
	})

	c := PassWait(Join(NewChain[int](), add(1)), slowLog)
	c2 := AsyncJoinWait(c, RunAsync(func(_ context.Context, p int) (int, error) { return p * 10, nil }))
	c3 := AsyncPassWait(c2, slowLog)
	c4 := AsyncPass(c3, slowLog)
	pipeline := c4.Create()

	v, err := Await(pipeline.Do(ctx, 1))
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.Equal(t, []string{"saw 2", "saw 20", "saw 20"}, rec.list())
	assert.Equal(t, []Mode{JoinSync, PassAsync, JoinAsync, PassAsync, PassSync}, c4.Modes())
}

func TestChain_FailurePropagatesUnchanged(t *testing.T) {
	boom := errors.New("step failed")
	failing := Run(func(context.Context, int) (int, error) { return 0, boom })
	var reached bool
	after := Effect(func(context.Context, int) error {
		reached = true
		return nil
	})

	_, err := Join(Pass(Join(NewChain[int](), failing), after), add(1)).Create().Exec(ctx, 1)
	assert.Same(t, boom, err)
	assert.False(t, reached)

	async := AsyncPass(JoinWait(NewChain[int](), RunAsync(func(context.Context, int) (int, error) { return 0, boom })), after)
	_, err = Await(async.Create().Do(ctx, 1))
	assert.Same(t, boom, err)
	assert.False(t, reached)
}

func TestChain_BranchesDoNotAlias(t *testing.T) {
	base := Join(NewChain[int](), add(1))
	left := Join(base, add(10))
	right := Join(base, add(100))

	l, err := left.Create().Exec(ctx, 0)
	require.NoError(t, err)
	r, err := right.Create().Exec(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 11, l)
	assert.Equal(t, 101, r)
	assert.Len(t, base.Modes(), 1)
}

func TestChain_ReusablePipeline(t *testing.T) {
	pipeline := Join(NewChain[int](), add(2)).Create()
	for i := 0; i < 3; i++ {
		v, err := pipeline.Exec(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, i+2, v)
	}
}

func TestPipeline_AsyncStepOnSyncExecutorPanics(t *testing.T) {
	p := &Pipeline[int, int]{
		steps: []ChainedAction{asyncStep[int, int](JoinAsync, add(1))},
		opts:  buildOptions(nil),
	}

	defer func() {
		r := recover()
		require.NotNil(t, r)
		fe, ok := r.(*schema.FlowError)
		require.True(t, ok, "panic value is a FlowError, got %T", r)
		assert.Equal(t, schema.ErrCodeContractViolation, fe.Code)
	}()
	_, _ = p.Exec(ctx, 1)
	t.Fatal("Exec must panic")
}

func TestChain_LogsSteps(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := Pass(NewChain[int](WithLogger(logger), WithName("numbers")), add(1))
	_, err := c.Create().Exec(ctx, 1)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "pipeline=numbers")
	assert.Contains(t, buf.String(), "mode=pass")
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "join", JoinSync.String())
	assert.Equal(t, "join_wait", JoinAsync.String())
	assert.Equal(t, "pass", PassSync.String())
	assert.Equal(t, "pass_wait", PassAsync.String())
	assert.Equal(t, "unknown", Mode(42).String())
	assert.True(t, PassAsync.IsAsync() && PassAsync.IsPass())
	assert.False(t, JoinSync.IsAsync() || JoinSync.IsPass())
}
