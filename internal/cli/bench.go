package cli

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yairfalse/perfpoll/pkg/perfbuf"
)

// bench reproduces the slow-consumer scenario: producers flood every ring
// while the data callback sleeps, a single poll runs against an infinite
// timeout, and after the window the delay is dropped to zero so the
// in-flight poll drains naturally. The run fails if one poll delivered
// more than readyCount full rings of data.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the slow-consumer backpressure scenario",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().Int("pages", 64, "data pages per ring (power of two)")
	benchCmd.Flags().Int("msg-size", 32*1024, "payload bytes per produced frame")
	benchCmd.Flags().Duration("delay", 200*time.Millisecond, "artificial delay per data callback")
	benchCmd.Flags().Duration("window", 20*time.Second, "time before the delay is dropped to zero")

	viper.BindPFlag("bench.pages", benchCmd.Flags().Lookup("pages"))
	viper.BindPFlag("bench.msg-size", benchCmd.Flags().Lookup("msg-size"))
	viper.BindPFlag("bench.delay", benchCmd.Flags().Lookup("delay"))
	viper.BindPFlag("bench.window", benchCmd.Flags().Lookup("window"))
}

// benchState is the callback cookie. The delay is mutated by the main
// goroutine while the poll goroutine reads it, hence the atomics.
type benchState struct {
	bytes   atomic.Uint64
	frames  atomic.Uint64
	lost    atomic.Uint64
	delayMS atomic.Int64
}

func benchOnSample(cookie any, data []byte) {
	state := cookie.(*benchState)
	state.bytes.Add(uint64(len(data)))
	state.frames.Add(1)
	if d := state.delayMS.Load(); d > 0 {
		time.Sleep(time.Duration(d) * time.Millisecond)
	}
}

func benchOnLost(cookie any, lost uint64) {
	state := cookie.(*benchState)
	state.lost.Add(lost)
}

func runBench(cmd *cobra.Command, args []string) error {
	pages := viper.GetInt("bench.pages")
	msgSize := viper.GetInt("bench.msg-size")
	delay := viper.GetDuration("bench.delay")
	window := viper.GetDuration("bench.window")

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	mgr, err := perfbuf.NewManager(nil, logger)
	if err != nil {
		return err
	}

	state := &benchState{}
	state.delayMS.Store(delay.Milliseconds())

	buf, err := mgr.Open("events", pages, perfbuf.Callbacks{
		Cookie:   state,
		OnSample: benchOnSample,
		OnLost:   benchOnLost,
	})
	if err != nil {
		return err
	}
	defer mgr.Shutdown()

	logger.Info("Scenario started",
		zap.Int("rings", len(buf.Rings())),
		zap.Uint64("ring_capacity", buf.Capacity()),
		zap.Int("msg_size", msgSize),
		zap.Duration("callback_delay", delay),
		zap.Duration("window", window),
	)

	// One producer per ring, flooding until told to stop.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, ring := range buf.Rings() {
		wg.Add(1)
		go func(p *perfbuf.Producer) {
			defer wg.Done()
			payload := make([]byte, msgSize)
			for {
				select {
				case <-stop:
					return
				default:
					p.Submit(payload)
				}
			}
		}(perfbuf.NewProducer(ring))
	}

	type pollResult struct {
		cnt int
		err error
	}
	pollDone := make(chan pollResult, 1)
	go func() {
		cnt, err := buf.Poll(0)
		pollDone <- pollResult{cnt, err}
	}()

	var res pollResult
	select {
	case res = <-pollDone:
	case <-time.After(window):
		// Let the in-flight poll catch up to its bound and return.
		state.delayMS.Store(0)
		logger.Info("Window elapsed, dropping callback delay to zero")
		res = <-pollDone
	}
	close(stop)
	wg.Wait()

	if res.err != nil {
		return fmt.Errorf("poll failed: %w", res.err)
	}

	delivered := state.bytes.Load()
	limit := uint64(res.cnt) * buf.Capacity()
	logger.Info("Scenario finished",
		zap.Int("ready_count", res.cnt),
		zap.Uint64("frames_delivered", state.frames.Load()),
		zap.Uint64("bytes_delivered", delivered),
		zap.Uint64("events_lost", state.lost.Load()),
		zap.Uint64("byte_limit", limit),
	)

	if delivered > limit {
		return fmt.Errorf("bounded drain violated: delivered %d bytes, limit %d (%d rings x %d)",
			delivered, limit, res.cnt, buf.Capacity())
	}
	return nil
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
