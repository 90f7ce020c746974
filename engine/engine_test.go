package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/hupe1980/taskmesh/session"
	"github.com/hupe1980/taskmesh/tool"
)

// clock returns strictly increasing timestamps.
func clock() func() time.Time {
	var mu sync.Mutex
	now := base
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newTestEngine(t *testing.T, optFns ...func(o *Options)) *Engine {
	t.Helper()
	fns := append([]func(o *Options){func(o *Options) { o.Now = clock() }}, optFns...)
	return New(fns...)
}

func echoRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	require.NoError(t, r.Register(tool.Descriptor{
		Name:    "test.echo",
		Summary: "echoes its text",
		Params:  []tool.ParamSpec{tool.RequiredParam("text", core.KindString, "text to echo")},
		Executor: tool.ExecutorFunc(func(_ context.Context, args tool.Args) (any, error) {
			return map[string]any{"echo": args.String("text")}, nil
		}),
	}))
	require.NoError(t, r.Register(tool.Descriptor{
		Name:    "test.fail",
		Summary: "always fails",
		Executor: tool.ExecutorFunc(func(context.Context, tool.Args) (any, error) {
			return nil, errors.New("boom")
		}),
	}))
	return r
}

func TestSend_StampsAndAppends(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	got, err := e.Send(ctx, core.Turn{TaskID: "t1", Role: core.RoleManager, Content: "plan"})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, base.Add(time.Millisecond), got.CreatedAt)
	assert.Equal(t, 1, got.Tokens)
	assert.Equal(t, "plan", got.Content)

	history, err := e.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, got, history[0])
}

func TestSend_KeepsCallerID(t *testing.T) {
	e := newTestEngine(t)

	got, err := e.Send(context.Background(), testutil.NewTurnBuilder("t1").ID("fixed").Content("x").Build())
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.ID)
}

func TestSend_RejectsInvalidTurn(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Send(ctx, core.Turn{TaskID: "t1", Role: "robot", Content: "x"})
	require.ErrorIs(t, err, core.ErrInvalidTurn)

	_, err = e.Send(ctx, core.Turn{Role: core.RoleUser, Content: "x"})
	require.ErrorIs(t, err, core.ErrInvalidTurn)

	history, err := e.History(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSend_EightyCharacterBudget(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Config.Budget = 80 })
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		content := strings.Repeat(fmt.Sprintf("message-%d ", i), 5)
		got, err := e.Send(ctx, core.NewTurn("chat", core.RoleUser, content))
		require.NoError(t, err)
		assert.Equal(t, content, got.Content)
	}

	history, err := e.History(ctx, "chat")
	require.NoError(t, err)

	hasSummary := false
	for _, turn := range history {
		if turn.Role == core.RoleSystem {
			hasSummary = true
		}
	}
	assert.LessOrEqual(t, core.ContentLength(history), 200)
	assert.True(t, hasSummary || len(history) < 5)
	assert.True(t, core.ContentLength(history) <= 80 || len(history) == 1)
}

func TestSend_BudgetHoldsAfterEverySend(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Config.Budget = 300 })
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		role := core.Roles[i%len(core.Roles)]
		_, err := e.Send(ctx, core.NewTurn("t", role, strings.Repeat("z", 10+(i*37)%90)))
		require.NoError(t, err)

		history, err := e.History(ctx, "t")
		require.NoError(t, err)
		total := core.ContentLength(history)
		assert.True(t, total <= 300 || len(history) == 1, "send %d: %d chars in %d turns", i, total, len(history))
	}
}

func TestSend_ReturnsStampedTurnEvenWhenEvicted(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Config.Budget = 5 })
	ctx := context.Background()

	_, err := e.Send(ctx, core.NewTurn("t", core.RoleUser, "first message"))
	require.NoError(t, err)
	got, err := e.Send(ctx, core.NewTurn("t", core.RoleUser, "second message"))
	require.NoError(t, err)

	assert.Equal(t, "second message", got.Content)
	history, err := e.History(ctx, "t")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, got.ID, history[0].ID)
}

func TestSend_ToolResultIsNotAppended(t *testing.T) {
	var payload any
	callbacks := NewCallbackManager()
	callbacks.RegisterCallback(NewFunctionCallback(CallbackAfterTool, func(_ context.Context, cc *CallbackContext) error {
		require.NotNil(t, cc.Result)
		payload = cc.Result.Payload
		return nil
	}))
	e := newTestEngine(t, func(o *Options) {
		o.Registry = echoRegistry(t)
		o.Callbacks = callbacks
	})
	ctx := context.Background()

	turn := testutil.NewTurnBuilder("t").Content("say hi").ToolCall("test.echo", map[string]any{"text": "hi"}).Build()
	_, err := e.Send(ctx, turn)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"echo": "hi"}, payload)
	history, err := e.History(ctx, "t")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "say hi", history[0].Content)
	assert.Equal(t, "test.echo", history[0].ToolCall.Name)
}

func TestSend_ToolFailureAfterAppendStillCompacts(t *testing.T) {
	e := newTestEngine(t, func(o *Options) {
		o.Config.Budget = 60
		o.Registry = echoRegistry(t)
	})
	ctx := context.Background()

	_, err := e.Send(ctx, core.NewTurn("t", core.RoleManager, strings.Repeat("m", 50)))
	require.NoError(t, err)

	turn := testutil.NewTurnBuilder("t").Content(strings.Repeat("w", 50)).ToolCall("test.fail", nil).Build()
	got, err := e.Send(ctx, turn)
	require.Error(t, err)
	assert.ErrorIs(t, err, tool.ErrExecutorFailure)
	assert.Equal(t, turn.ID, got.ID)

	var execErr *tool.ExecutorError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "test.fail", execErr.Tool)

	history, err := e.History(ctx, "t")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, turn.ID, history[0].ID)
}

func TestSend_ToolErrors(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Registry = echoRegistry(t) })
	ctx := context.Background()

	_, err := e.Send(ctx, testutil.NewTurnBuilder("t").Content("a").ToolCall("test.missing", nil).Build())
	assert.ErrorIs(t, err, tool.ErrUnsupportedTool)

	_, err = e.Send(ctx, testutil.NewTurnBuilder("t").Content("b").ToolCall("test.echo", map[string]any{"text": int64(3)}).Build())
	assert.ErrorIs(t, err, tool.ErrInvalidArguments)

	history, err := e.History(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSend_BeforeToolVeto(t *testing.T) {
	var called atomic.Int32
	r := tool.NewRegistry()
	require.NoError(t, r.Register(tool.Descriptor{
		Name: "admin.freeze",
		Executor: tool.ExecutorFunc(func(context.Context, tool.Args) (any, error) {
			called.Add(1)
			return nil, nil
		}),
	}))
	denied := errors.New("denied")
	callbacks := NewCallbackManager()
	callbacks.RegisterCallback(NewToolGuardCallback(func(taskID, name string) error {
		if strings.HasPrefix(name, "admin.") {
			return denied
		}
		return nil
	}))
	e := newTestEngine(t, func(o *Options) {
		o.Registry = r
		o.Callbacks = callbacks
	})

	_, err := e.Send(context.Background(), testutil.NewTurnBuilder("t").Content("x").ToolCall("admin.freeze", nil).Build())
	require.ErrorIs(t, err, denied)
	assert.Zero(t, called.Load())
}

func TestSend_CallbackOrderAndErrors(t *testing.T) {
	var (
		mu     sync.Mutex
		events []CallbackType
	)
	record := func(_ context.Context, cc *CallbackContext) error {
		mu.Lock()
		events = append(events, cc.CallbackType)
		mu.Unlock()
		return nil
	}
	callbacks := NewCallbackManager()
	for _, ct := range []CallbackType{CallbackAfterAppend, CallbackBeforeTool, CallbackAfterTool, CallbackAfterCompaction, CallbackOnError} {
		callbacks.RegisterCallback(NewFunctionCallback(ct, record))
	}
	audit := errors.New("audit sink down")
	callbacks.RegisterCallback(NewFunctionCallback(CallbackAfterAppend, func(context.Context, *CallbackContext) error { return audit }))

	e := newTestEngine(t, func(o *Options) {
		o.Registry = echoRegistry(t)
		o.Callbacks = callbacks
	})

	got, err := e.Send(context.Background(), testutil.NewTurnBuilder("t").Content("x").ToolCall("test.echo", map[string]any{"text": "x"}).Build())
	require.ErrorIs(t, err, audit)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, []CallbackType{
		CallbackAfterAppend,
		CallbackBeforeTool,
		CallbackAfterTool,
		CallbackAfterCompaction,
		CallbackOnError,
	}, events)
}

func TestSend_AppendFailure(t *testing.T) {
	store := testutil.NewFaultyStore(session.NewInMemoryStore())
	store.FailAppend(true)
	e := newTestEngine(t, func(o *Options) { o.Store = store })

	got, err := e.Send(context.Background(), core.NewTurn("t", core.RoleUser, "x"))
	require.ErrorIs(t, err, core.ErrStorage)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, core.Turn{}, got)

	store.FailAppend(false)
	history, err := e.History(context.Background(), "t")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSend_ReplaceFailureKeepsAppend(t *testing.T) {
	store := testutil.NewFaultyStore(session.NewInMemoryStore())
	e := newTestEngine(t, func(o *Options) {
		o.Store = store
		o.Config.Budget = 10
	})
	ctx := context.Background()

	_, err := e.Send(ctx, core.NewTurn("t", core.RoleUser, "0123456789"))
	require.NoError(t, err)

	store.FailReplace(true)
	got, err := e.Send(ctx, core.NewTurn("t", core.RoleUser, "abcdefghij"))
	require.ErrorIs(t, err, core.ErrStorage)
	assert.Equal(t, "abcdefghij", got.Content)

	history, err := e.History(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSend_SkipsWriteWhenWithinBudget(t *testing.T) {
	store := testutil.NewFaultyStore(session.NewInMemoryStore())
	e := newTestEngine(t, func(o *Options) { o.Store = store })

	for i := 0; i < 5; i++ {
		_, err := e.Send(context.Background(), core.NewTurn("t", core.RoleUser, "short"))
		require.NoError(t, err)
	}
	assert.Zero(t, store.Replaces())
}

func TestSend_SerialisesPerTask(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight = map[string]int{}
		overlap  atomic.Bool
	)
	callbacks := NewCallbackManager()
	callbacks.RegisterCallback(NewFunctionCallback(CallbackAfterAppend, func(_ context.Context, cc *CallbackContext) error {
		mu.Lock()
		inFlight[cc.TaskID]++
		if inFlight[cc.TaskID] > 1 {
			overlap.Store(true)
		}
		mu.Unlock()
		return nil
	}))
	callbacks.RegisterCallback(NewFunctionCallback(CallbackAfterCompaction, func(_ context.Context, cc *CallbackContext) error {
		mu.Lock()
		inFlight[cc.TaskID]--
		mu.Unlock()
		return nil
	}))
	e := newTestEngine(t, func(o *Options) {
		o.Callbacks = callbacks
		o.Config.Budget = 200
	})

	var wg sync.WaitGroup
	for _, task := range []string{"a", "b", "c"} {
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func(task string, i int) {
				defer wg.Done()
				_, err := e.Send(context.Background(), core.NewTurn(task, core.RoleWorker, fmt.Sprintf("%s-%02d-%s", task, i, strings.Repeat(".", 20))))
				assert.NoError(t, err)
			}(task, i)
		}
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	for _, task := range []string{"a", "b", "c"} {
		history, err := e.History(context.Background(), task)
		require.NoError(t, err)
		assert.LessOrEqual(t, core.ContentLength(history), 200)
	}
	e.locksMu.Lock()
	assert.Empty(t, e.locks)
	e.locksMu.Unlock()
}

func TestSend_SlowToolDelaysOnlyItsTask(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	r := tool.NewRegistry()
	require.NoError(t, r.Register(tool.Descriptor{
		Name: "test.block",
		Executor: tool.ExecutorFunc(func(context.Context, tool.Args) (any, error) {
			close(entered)
			<-release
			return nil, nil
		}),
	}))
	e := newTestEngine(t, func(o *Options) { o.Registry = r })
	ctx := context.Background()

	slow := make(chan error, 1)
	go func() {
		_, err := e.Send(ctx, core.NewTurn("a", core.RoleWorker, "slow").WithToolCall("test.block", nil))
		slow <- err
	}()
	<-entered

	_, err := e.Send(ctx, core.NewTurn("b", core.RoleWorker, "other task"))
	require.NoError(t, err, "a different task is not blocked by the running tool")

	queued := make(chan error, 1)
	go func() {
		_, err := e.Send(ctx, core.NewTurn("a", core.RoleWorker, "queued"))
		queued <- err
	}()
	select {
	case <-queued:
		t.Fatal("send for the same task finished while the tool was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-slow)
	require.NoError(t, <-queued)

	history, err := e.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "slow", history[0].Content)
	assert.Equal(t, "queued", history[1].Content)
}

func TestEngine_ClearAndCompact(t *testing.T) {
	store := session.NewInMemoryStore()
	e := newTestEngine(t, func(o *Options) {
		o.Store = store
		o.Config.Budget = 100
	})
	ctx := context.Background()

	for _, turn := range uniformHistory(6, 40) {
		require.NoError(t, store.Append(ctx, turn))
	}

	report, err := e.Compact(ctx, "task")
	require.NoError(t, err)
	assert.True(t, report.Changed())
	assert.Equal(t, 240, report.CharsBefore)
	assert.LessOrEqual(t, report.CharsAfter, 100)

	require.NoError(t, e.Clear(ctx, "task"))
	history, err := e.History(ctx, "task")
	require.NoError(t, err)
	assert.Empty(t, history)
}
