package cmd

import (
	"context"
	"time"

	"github.com/justapithecus/plug/config"
	"github.com/justapithecus/plug/history"
	"github.com/justapithecus/plug/log"
	"github.com/justapithecus/plug/notify"
	"github.com/justapithecus/plug/notify/redis"
	"github.com/justapithecus/plug/notify/webhook"
)

// notifyTimeout bounds publishing after the build, including retries.
const notifyTimeout = 30 * time.Second

// buildNotifiers creates the notifiers configured in plug.yaml, including
// the history recorder. A notifier that cannot be created is logged and
// left out; it never stops the build.
func buildNotifiers(ctx context.Context, logger *log.Logger, cfg *config.Config, cfgDir string) notify.Set {
	var set notify.Set
	add := func(name string, n notify.Notifier, err error) {
		if err != nil {
			logger.Warn("build notifier unavailable", map[string]any{
				"notifier": name,
				"error":    err.Error(),
			})
			return
		}
		set = append(set, n)
	}

	if h := cfg.History; h != nil {
		ds, err := openHistory(ctx, h, cfgDir)
		if err != nil {
			add("history", nil, err)
		} else {
			add("history", history.NewRecorder(ds), nil)
		}
	}
	if w := cfg.Notify.Webhook; w != nil {
		n, err := webhook.New(webhook.Config{
			URL:     w.URL,
			Headers: w.Headers,
			Timeout: w.Timeout.Duration,
			Retries: retries(w.Retries, webhook.DefaultRetries),
		})
		add("webhook", n, err)
	}
	if r := cfg.Notify.Redis; r != nil {
		n, err := redis.New(redis.Config{
			URL:     r.URL,
			Channel: r.Channel,
			Timeout: r.Timeout.Duration,
			Retries: retries(r.Retries, redis.DefaultRetries),
		})
		add("redis", n, err)
	}
	return set
}

func retries(configured *int, fallback int) int {
	if configured == nil {
		return fallback
	}
	return *configured
}

// publish sends event to set. Failures are logged as warnings; they never
// change the build outcome. Publishing outlives a canceled build so the
// canceled outcome is still delivered.
func publish(ctx context.Context, logger *log.Logger, set notify.Set, event *notify.BuildCompletedEvent) {
	if len(set) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := set.Publish(ctx, event); err != nil {
		logger.Warn("build notification failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	logger.Debug("build notification sent", map[string]any{
		"notifiers": len(set),
		"outcome":   string(event.Outcome),
	})
}
