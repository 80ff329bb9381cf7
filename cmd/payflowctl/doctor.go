package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"payflow/internal/adapters/analytics/clickhouse"
)

var errNotConfigured = errors.New("not configured")

// Check describes one diagnostic check.
type Check struct {
	Name     string
	Func     func(ctx context.Context) error
	Error    error
	Duration time.Duration
}

func (c *cli) doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to every dependency of the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gateway, _ := cmd.Flags().GetString("gateway")
			if gateway == "" {
				gateway = "localhost" + listenAddr(c.cfg.Server.Port)
			}
			checks := c.checks(gateway)
			runChecks(cmd.Context(), checks)
			return report(checks)
		},
	}
	cmd.Flags().String("gateway", "", "gateway host:port (default localhost and the configured port)")
	return cmd
}

func (c *cli) checks(gateway string) []Check {
	cfg := c.cfg
	return []Check{
		{Name: "Payment Gateway", Func: func(ctx context.Context) error {
			return checkHTTPHealth(ctx, gateway+"/health")
		}},
		{Name: "PostgreSQL", Func: func(ctx context.Context) error {
			return checkPostgres(ctx, cfg.Postgres.DSN)
		}},
		{Name: "Redis", Func: func(ctx context.Context) error {
			return checkRedis(ctx, cfg.Redis.Addr)
		}},
		{Name: "Kafka Cluster", Func: func(ctx context.Context) error {
			return checkKafka(ctx, cfg.Kafka.BootstrapServers)
		}},
		{Name: "ClickHouse", Func: func(ctx context.Context) error {
			if cfg.ClickHouse.Addr == "" {
				return errNotConfigured
			}
			sink, err := clickhouse.Open(ctx, cfg.ClickHouse)
			if err != nil {
				return err
			}
			return sink.Close()
		}},
		{Name: "OIDC Provider", Func: func(ctx context.Context) error {
			if cfg.OIDC.URL == "" {
				return errNotConfigured
			}
			return checkHTTPHealth(ctx, strings.TrimSuffix(cfg.OIDC.URL, "/")+"/.well-known/openid-configuration")
		}},
		{Name: "Open Policy Agent", Func: func(ctx context.Context) error {
			if cfg.OPA.URL == "" {
				return errNotConfigured
			}
			return checkHTTPHealth(ctx, opaHealthURL(cfg.OPA.URL))
		}},
	}
}

func runChecks(ctx context.Context, checks []Check) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := range checks {
		wg.Add(1)
		go func(c *Check) {
			defer wg.Done()
			start := time.Now()
			c.Error = c.Func(ctx)
			c.Duration = time.Since(start)
		}(&checks[i])
	}
	wg.Wait()
}

func report(checks []Check) error {
	ok := color.New(color.FgGreen).SprintFunc()
	skip := color.New(color.FgYellow).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()

	failed := 0
	for _, c := range checks {
		took := c.Duration.Round(time.Millisecond)
		switch {
		case c.Error == nil:
			fmt.Printf("[%s]   %-20s (%v)\n", ok("OK"), c.Name, took)
		case errors.Is(c.Error, errNotConfigured):
			fmt.Printf("[%s] %-20s\n", skip("SKIP"), c.Name)
		default:
			failed++
			fmt.Printf("[%s] %-20s (%v) %v\n", fail("FAIL"), c.Name, took, c.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}

func checkHTTPHealth(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, "http") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func checkPostgres(ctx context.Context, dsn string) error {
	if dsn == "" {
		return errNotConfigured
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

func checkRedis(ctx context.Context, addr string) error {
	if addr == "" {
		return errNotConfigured
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	return rdb.Ping(ctx).Err()
}

func checkKafka(ctx context.Context, brokers string) error {
	if brokers == "" {
		return errNotConfigured
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.DialTimeout(5*time.Second),
	)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Ping(ctx)
}

// opaHealthURL derives the server health endpoint from a decision URL such as
// http://opa:8181/v1/data/payflow/authz.
func opaHealthURL(decisionURL string) string {
	if i := strings.Index(decisionURL, "/v1/"); i >= 0 {
		return decisionURL[:i] + "/health"
	}
	return strings.TrimSuffix(decisionURL, "/") + "/health"
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
