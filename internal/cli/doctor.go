package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/synheart/roomwatch/internal/broker"
	"github.com/synheart/roomwatch/internal/notify"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, regime tables and notifier connectivity",
	Long:  `Validates the configuration, loads the regime tables, checks port availability and checks each enabled notifier.`,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🏥 roomwatch environment check")
	fmt.Fprintf(out, "Go Version:        %s\n", runtime.Version())
	fmt.Fprintf(out, "OS/Arch:           %s/%s\n\n", runtime.GOOS, runtime.GOARCH)

	failures := 0
	check := func(ok bool, format string, args ...any) {
		if ok {
			fmt.Fprintf(out, "✅ "+format+"\n", args...)
			return
		}
		failures++
		fmt.Fprintf(out, "❌ "+format+"\n", args...)
	}

	if err := cfg.Validate(); err != nil {
		check(false, "Configuration invalid: %v", err)
	} else {
		check(true, "Configuration valid, %d device(s)", len(cfg.Devices))
		for _, d := range cfg.Devices {
			fmt.Fprintf(out, "   %-4s %s\n", d.ID, d.Room)
		}
	}

	registry, err := tableRegistry()
	if err != nil {
		check(false, "Regime tables: %v", err)
	} else {
		fmt.Fprintf(out, "✅ Regime tables: %v\n", registry.List())
		if dir, ok := getRegimeDir(); ok {
			fmt.Fprintf(out, "   Loaded user tables from %s\n", dir)
		}
	}
	if table, err := loadTable(cfg.Simulation.Regimes); err != nil {
		check(false, "Active regime table %q: %v", cfg.Simulation.Regimes, err)
	} else {
		check(table.Validate() == nil, "Active regime table %q", table.Name)
	}
	fmt.Fprintln(out)

	if isPortAvailable(cfg.HTTP.Host, cfg.HTTP.Port) {
		fmt.Fprintf(out, "✅ Port %d is available on %s\n", cfg.HTTP.Port, cfg.HTTP.Host)
	} else {
		fmt.Fprintf(out, "⚠️  Port %d is in use on %s\n", cfg.HTTP.Port, cfg.HTTP.Host)
		fmt.Fprintln(out, "   Use --port or ROOMWATCH_HTTP_PORT to pick another")
	}
	fmt.Fprintln(out)

	failures += checkNotifiers(out)

	fmt.Fprintln(out)
	printConnectionExamples(out)

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	fmt.Fprintln(out, "✅ Environment check complete")
	return nil
}

// checkNotifiers connects to every enabled notifier and returns the failure count
func checkNotifiers(out io.Writer) int {
	n := cfg.Notify
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fmt.Fprintln(out, "📨 Notifiers:")
	failures := 0
	report := func(name string, enabled bool, err error) {
		switch {
		case !enabled:
			fmt.Fprintf(out, "   -  %-9s disabled\n", name)
		case err != nil:
			failures++
			fmt.Fprintf(out, "   ❌ %-9s %v\n", name, err)
		default:
			fmt.Fprintf(out, "   ✅ %-9s reachable\n", name)
		}
	}

	report("log", n.Log, nil)

	var err error
	if n.Redis.Enabled {
		stream := notify.NewRedisStream(notify.NewRedisClient(n.Redis.RedisConfig), n.Redis.Stream, n.Redis.MaxLen)
		err = stream.Ping(ctx)
		stream.Close()
	}
	report("redis", n.Redis.Enabled, err)

	err = nil
	if n.MQTT.Enabled {
		var client *broker.Client
		client, err = broker.Connect(n.MQTT.Config)
		if err == nil {
			client.Close()
		}
	}
	report("mqtt", n.MQTT.Enabled, err)

	err = nil
	if n.Webhook.Enabled && n.Webhook.URL == "" {
		err = fmt.Errorf("no url configured")
	}
	report("webhook", n.Webhook.Enabled, err)

	err = nil
	if n.Postgres.Enabled {
		var db *sql.DB
		db, err = notify.OpenPostgres(n.Postgres.PostgresConfig)
		if err == nil {
			db.Close()
		}
	}
	report("postgres", n.Postgres.Enabled, err)

	return failures
}

func printConnectionExamples(out io.Writer) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	fmt.Fprintln(out, "📡 Connection Examples:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "curl:")
	fmt.Fprintf(out, "  curl http://%s/v1/devices\n", addr)
	fmt.Fprintf(out, "  curl http://%s/v1/devices/1/report\n", addr)
	fmt.Fprintf(out, "  curl -N http://%s/live/sse\n", addr)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "JavaScript/Node.js:")
	fmt.Fprintf(out, "  const ws = new WebSocket('ws://%s/live');\n", addr)
	fmt.Fprintln(out, "  ws.onmessage = (event) => console.log(JSON.parse(event.data));")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Go:")
	fmt.Fprintf(out, "  conn, _, err := websocket.DefaultDialer.Dial(\"ws://%s/live\", nil)\n", addr)
	fmt.Fprintln(out, "  for {")
	fmt.Fprintln(out, "    _, message, err := conn.ReadMessage()")
	fmt.Fprintln(out, "    var frame map[string]any")
	fmt.Fprintln(out, "    json.Unmarshal(message, &frame)")
	fmt.Fprintln(out, "  }")
	fmt.Fprintln(out)
}

func isPortAvailable(host string, port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
