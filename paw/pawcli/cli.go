package pawcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/prior-auth/paw-app/conf"
	"github.com/prior-auth/paw-app/paw/client"
	"github.com/prior-auth/paw-app/paw/constants"
	"github.com/prior-auth/paw-app/paw/coordinator"
	"github.com/prior-auth/paw-app/paw/gateway"
	"github.com/prior-auth/paw-app/paw/models"
	"github.com/prior-auth/paw-app/paw/monitoring"
	"github.com/prior-auth/paw-app/paw/planner"
	"github.com/prior-auth/paw-app/paw/utils"
	"github.com/prior-auth/paw-app/paw/validation"
	"github.com/prior-auth/paw-app/paw/web"
)

// App Name and usage.  Edit them here to prevent breaking tests
const Name = "paw"
const Usage = "Prior Authorization Workflow engine CLI"

func GetApp() *cli.App {
	return setUpApp()
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage
	app.Version = constants.Version
	var caseFile, payerName string
	var maxIterations int
	app.Commands = []cli.Command{
		{
			Name:  "start-api",
			Usage: "Start the workflow API",
			Action: func(c *cli.Context) error {
				co, err := buildCoordinator()
				if err != nil {
					return err
				}

				fmt.Fprintf(app.Writer, "%s\n", "Starting paw...")

				api := &http.Server{
					Handler:      web.NewAPIRouter(web.NewHandlers(co)),
					Addr:         fmt.Sprintf(":%d", utils.GetEnvInt("PAW_API_PORT", 3000)),
					ReadTimeout:  time.Duration(utils.GetEnvInt("API_READ_TIMEOUT", 10)) * time.Second,
					WriteTimeout: time.Duration(utils.GetEnvInt("API_WRITE_TIMEOUT", 20)) * time.Second,
					IdleTimeout:  time.Duration(utils.GetEnvInt("API_IDLE_TIMEOUT", 120)) * time.Second,
				}
				return api.ListenAndServe()
			},
		},
		{
			Name:  "run-case",
			Usage: "Drive a case from a JSON file to a terminal outcome",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "file",
					Usage:       "Path to the case JSON document",
					Destination: &caseFile,
				},
				cli.IntFlag{
					Name:        "max-iterations",
					Usage:       "Upper bound on workflow iterations before giving up",
					Value:       40,
					Destination: &maxIterations,
				},
			},
			Action: func(ctx *cli.Context) error {
				c, err := loadCase(caseFile)
				if err != nil {
					return err
				}
				co, err := buildCoordinator()
				if err != nil {
					return err
				}
				final, err := runCase(context.Background(), co, c, maxIterations, app.Writer)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "case %s finished with outcome %q\n", final.ID, final.Outcome)
				return nil
			},
		},
		{
			Name:  "validate-case",
			Usage: "Run eligibility checks against a case JSON file",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "file",
					Usage:       "Path to the case JSON document",
					Destination: &caseFile,
				},
			},
			Action: func(ctx *cli.Context) error {
				c, err := loadCase(caseFile)
				if err != nil {
					return err
				}
				report := validation.ValidateCase(context.Background(), c)
				return printJSON(app.Writer, report)
			},
		},
		{
			Name:  "classify-denial",
			Usage: "Classify a payer's denial on a case JSON file",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "file",
					Usage:       "Path to the case JSON document",
					Destination: &caseFile,
				},
				cli.StringFlag{
					Name:        "payer",
					Usage:       "Payer whose denial should be classified (defaults to the first denied payer)",
					Destination: &payerName,
				},
			},
			Action: func(ctx *cli.Context) error {
				c, err := loadCase(caseFile)
				if err != nil {
					return err
				}
				payer := payerName
				if payer == "" {
					for _, p := range c.PayerSequence {
						if c.State(p).Status == models.StatusDenied {
							payer = p
							break
						}
					}
				}
				if payer == "" {
					return errors.New("no denied payer on case; nothing to classify")
				}
				state := c.State(payer)
				if state.Status != models.StatusDenied {
					return errors.Errorf("payer %s is %s, not denied", payer, state.Status)
				}
				return printJSON(app.Writer, planner.Classify(state, c))
			},
		},
	}
	return app
}

// buildCoordinator assembles the engine from environment configuration: the
// gateway registry, the resilient outbound client, and the appeal planner.
func buildCoordinator() (*coordinator.Coordinator, error) {
	gwCfg, err := gateway.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "could not load gateway config")
	}
	registry := gateway.NewRegistry(*gwCfg)

	clientCfg, err := client.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "could not load client config")
	}
	caller := client.NewResilientClient(*clientCfg, client.Destination{
		Name:    client.GenerationDestination,
		BaseURL: conf.GetEnv("PAW_GENERATION_URL"),
	})

	catalog, err := planner.LoadPolicyCatalog()
	if err != nil {
		return nil, errors.Wrap(err, "could not load policy catalog")
	}
	appeals := planner.NewAppealPlanner(client.NewGenerationClient(caller), catalog)

	return coordinator.New(registry, appeals), nil
}

// runCase drives the workflow loop: next action, status polls, recovery when
// flagged, until every payer reaches a terminal state or the iteration bound
// is hit.
func runCase(ctx context.Context, co *coordinator.Coordinator, c *models.Case,
	maxIterations int, w io.Writer) (*models.Case, error) {

	timer := monitoring.GetTimer()
	defer timer.Close()
	ctx = monitoring.NewContext(ctx, timer)

	for i := 0; i < maxIterations; i++ {
		var (
			delta *models.Delta
			err   error
		)
		switch {
		case c.RecoveryNeeded || anyDenied(c):
			delta, err = co.ExecuteRecoveryAction(ctx, c)
		case pendingSubmission(c) || len(c.PayerSequence) == 0:
			// An empty payer sequence surfaces the coordinator's NoStrategyError.
			delta, err = co.ExecuteNextAction(ctx, c)
		default:
			delta, err = co.CheckPayerStatus(ctx, c, nextPollTarget(c))
		}
		if err != nil {
			return nil, err
		}

		for _, msg := range delta.Messages {
			fmt.Fprintf(w, "  [%s] %s\n", delta.ActionType, msg)
		}
		if delta.Error != "" {
			log.Warnf("case %s action error: %s", c.ID, delta.Error)
		}
		c = delta.Apply(c)

		if c.Complete || allTerminal(c) {
			finalizeOutcome(c)
			return c, nil
		}
	}
	return nil, errors.Errorf("case %s did not reach a terminal state in %d iterations", c.ID, maxIterations)
}

func pendingSubmission(c *models.Case) bool {
	for _, p := range c.PayerSequence {
		switch c.State(p).Status {
		case models.StatusNotSubmitted, models.StatusPendingInfo:
			return true
		}
	}
	return false
}

// nextPollTarget picks the first payer still awaiting a determination.
func nextPollTarget(c *models.Case) string {
	for _, p := range c.PayerSequence {
		if !c.State(p).Status.Terminal() && c.State(p).Reference != "" {
			return p
		}
	}
	return c.PayerSequence[0]
}

func anyDenied(c *models.Case) bool {
	for _, p := range c.PayerSequence {
		if c.State(p).Status == models.StatusDenied {
			return true
		}
	}
	return false
}

func allTerminal(c *models.Case) bool {
	for _, p := range c.PayerSequence {
		if !c.State(p).Status.Terminal() {
			return false
		}
	}
	return true
}

func finalizeOutcome(c *models.Case) {
	if c.Outcome != "" {
		return
	}
	for _, p := range c.PayerSequence {
		switch c.State(p).Status {
		case models.StatusApproved, models.StatusAppealApproved:
			c.Outcome = "approved"
			c.Complete = true
			return
		}
	}
	c.Outcome = "exhausted"
	c.Complete = true
}

func loadCase(path string) (*models.Case, error) {
	if path == "" {
		return nil, errors.New("case file (--file) must be provided")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read case file %s", path)
	}
	var c models.Case
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "could not parse case file %s", path)
	}
	return &c, nil
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}
