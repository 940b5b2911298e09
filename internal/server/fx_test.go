package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/acra-collector/internal/config"
	"github.com/JakeFAU/acra-collector/internal/notify"
)

const payload = `{"ANDROID_VERSION":"14","APP_VERSION_CODE":7,"APP_VERSION_NAME":"0.7",` +
	`"CUSTOM_DATA":{},"PACKAGE_NAME":"org.example","REPORT_ID":"r-serve","STACK_TRACE":"trace"}`

func testConfig() config.Config {
	return config.Config{
		Host:               "127.0.0.1",
		Port:               8080,
		EmailFrom:          "crashes@example.com",
		EmailTo:            "dev@example.com",
		SMTPHost:           "smtp.example.com",
		SMTPPort:           587,
		SMTPUser:           "user",
		SMTPPass:           "pass",
		CrashLog:           "logs/crashes.txt",
		ReportPath:         "/report",
		Workers:            2,
		QueueDepth:         4,
		SMTPTimeoutSeconds: 15,
		ServiceName:        "acra-collector-test",
	}
}

// Not parallel: Build installs the global tracer provider.
func TestAppServeProcessesReportsAndShutsDown(t *testing.T) {
	fs := afero.NewMemMapFs()
	sender := &recordingSender{}
	app, err := Build(context.Background(), testConfig(), Options{Fs: fs, Sender: sender, Logger: zap.NewNop()})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Serve(ctx, ln)
	}()

	url := "http://" + ln.Addr().String() + "/report"
	resp, err := http.Post(url, "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	data, err := afero.ReadFile(fs, "logs/crashes.txt")
	require.NoError(t, err)
	require.Equal(t, payload+"\n", string(data))
	require.Equal(t, 1, sender.count())
}

// Not parallel: Build installs the global tracer provider.
func TestAppServeFailsReportsLeftQueuedAfterDrainTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueDepth = 2
	sender := &blockingSender{started: make(chan struct{}, 1), hold: time.Second}
	app, err := Build(context.Background(), cfg, Options{Fs: afero.NewMemMapFs(), Sender: sender, Logger: zap.NewNop()})
	require.NoError(t, err)
	app.shutdownTimeout = 100 * time.Millisecond

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Serve(ctx, ln)
	}()

	url := "http://" + ln.Addr().String() + "/report"
	post := func(codes chan<- int) {
		resp, err := http.Post(url, "application/json", strings.NewReader(payload))
		if err != nil {
			codes <- 0
			return
		}
		_ = resp.Body.Close()
		codes <- resp.StatusCode
	}

	first := make(chan int, 1)
	go post(first)
	select {
	case <-sender.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first report never reached the sender")
	}

	second := make(chan int, 1)
	go post(second)
	require.Eventually(t, func() bool { return app.queue.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()

	for name, ch := range map[string]chan int{"first": first, "second": second} {
		select {
		case code := <-ch:
			want := http.StatusOK
			if name == "second" {
				want = http.StatusInternalServerError
			}
			require.Equal(t, want, code, name)
		case <-time.After(10 * time.Second):
			t.Fatalf("%s request never got a response", name)
		}
	}

	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	require.Equal(t, 1, sender.count())
}

func TestBuildRejectsBadSMTPSettings(t *testing.T) {
	cfg := testConfig()
	cfg.SMTPHost = ""

	_, err := Build(context.Background(), cfg, Options{Fs: afero.NewMemMapFs(), Logger: zap.NewNop()})
	require.ErrorContains(t, err, "mailer init failed")
}

func TestBuildRejectsUnwritableLogDir(t *testing.T) {
	cfg := testConfig()
	_, err := Build(context.Background(), cfg, Options{
		Fs:     afero.NewReadOnlyFs(afero.NewMemMapFs()),
		Sender: &recordingSender{},
		Logger: zap.NewNop(),
	})
	require.ErrorContains(t, err, "crash log init failed")
}

func TestRunFailsWhenAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	app, err := Build(context.Background(), cfg, Options{
		Fs:     afero.NewMemMapFs(),
		Sender: &recordingSender{},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	var opErr *net.OpError
	require.True(t, errors.As(err, &opErr), "expected listen error, got %v", err)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// blockingSender holds every send for a fixed time before succeeding.
type blockingSender struct {
	recordingSender
	started chan struct{}
	hold    time.Duration
}

func (s *blockingSender) Send(ctx context.Context, msg notify.Message) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	time.Sleep(s.hold)
	return s.recordingSender.Send(ctx, msg)
}
