package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gometeo/weathermail/internal/audit"
	"github.com/gometeo/weathermail/internal/config"
	"github.com/gometeo/weathermail/internal/form"
	"github.com/gometeo/weathermail/internal/logging"
	"github.com/gometeo/weathermail/internal/tui"
	"github.com/gometeo/weathermail/internal/weatherapi"
)

const logFile = "weathermail-tui.log"

func main() {
	cfg := config.Load()

	// The terminal belongs to the UI; logs only go to a file at debug level.
	var out io.Writer = io.Discard
	if logging.ParseLevel(cfg.LogLevel) == slog.LevelDebug {
		f, err := tea.LogToFile(logFile, "tui")
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	logger := logging.New(out, cfg.LogLevel, cfg.Env)

	opts := []form.Option{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic, logger)
		if err != nil {
			logger.Warn("Kafka unavailable, auditing disabled", "error", err)
		} else {
			defer publisher.Close()
			opts = append(opts, form.WithAuditor(publisher))
		}
	}

	client := weatherapi.NewClient(cfg.WeatherAPIURL, cfg.HTTPTimeout)
	ctrl := form.New(client, logger, opts...)

	if _, err := tea.NewProgram(tui.New(ctrl, cfg.HTTPTimeout)).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
