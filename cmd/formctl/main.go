// Command formctl authors, inspects and fills forms over the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/client"
	"github.com/formcraft/formcraft-backend/internal/config"
	"github.com/formcraft/formcraft-backend/internal/logger"
	"github.com/formcraft/formcraft-backend/internal/session"
)

const usage = `Usage: formctl <command> [flags]

Commands:
  create  -draft file.json           create a form from a draft
  update  -id ID -draft file.json    replace a form's content with a draft
  list                               list forms
  get     -id ID                     print a form
  delete  -id ID                     delete a form and its responses
  stats   -id ID                     print a form's response count
  fill    -id ID -answers file.json  fill a form and submit the response
  responses -id ID                   list a form's responses
  export  -id ID -o file.xlsx        download responses as a spreadsheet
  wake                               wake the server up
`

type app struct {
	api *client.Client
	log zerolog.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.LoadClient()
	log := logger.New(os.Stderr, cfg.LogLevel, logger.FormatAuto)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{
		api: client.New(cfg.APIURL, client.WithTimeout(cfg.Timeout), client.WithLogger(log)),
		log: log,
	}
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			log.Error().Int("status", apiErr.Status).Str("code", apiErr.Code).Msg(apiErr.Message)
		} else {
			log.Error().Err(err).Msg("Command failed")
		}
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	id := fs.String("id", "", "form id")
	draft := fs.String("draft", "", "draft file")
	answers := fs.String("answers", "", "answer file")
	out := fs.String("o", "responses.xlsx", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	need := func(name, v string) error {
		if v == "" {
			return fmt.Errorf("%s: -%s is required", cmd, name)
		}
		return nil
	}

	switch cmd {
	case "create":
		if err := need("draft", *draft); err != nil {
			return err
		}
		return a.save(ctx, "", *draft)
	case "update":
		if err := errors.Join(need("id", *id), need("draft", *draft)); err != nil {
			return err
		}
		return a.save(ctx, *id, *draft)
	case "list":
		forms, err := a.api.ListForms(ctx)
		if err != nil {
			return err
		}
		return printJSON(forms)
	case "get":
		if err := need("id", *id); err != nil {
			return err
		}
		f, err := a.api.GetForm(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(f)
	case "delete":
		if err := need("id", *id); err != nil {
			return err
		}
		if err := a.api.DeleteForm(ctx, *id); err != nil {
			return err
		}
		a.log.Info().Str("form_id", *id).Msg("Form deleted")
		return nil
	case "stats":
		if err := need("id", *id); err != nil {
			return err
		}
		n, err := a.api.FormStats(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(map[string]int64{"responseCount": n})
	case "fill":
		if err := errors.Join(need("id", *id), need("answers", *answers)); err != nil {
			return err
		}
		return a.fill(ctx, *id, *answers)
	case "responses":
		if err := need("id", *id); err != nil {
			return err
		}
		rs, err := a.api.ListResponses(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(rs)
	case "export":
		if err := need("id", *id); err != nil {
			return err
		}
		data, err := a.api.ExportResponses(ctx, *id)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return err
		}
		a.log.Info().Str("file", *out).Int("bytes", len(data)).Msg("Responses exported")
		return nil
	case "wake":
		return a.api.WakeUp(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// save creates a form from a draft, or replaces the content of form id.
func (a *app) save(ctx context.Context, id, draftPath string) error {
	s := session.New(a.api, a.log)
	if id != "" {
		f, err := s.LoadForm(ctx, id)
		if err != nil {
			return err
		}
		s.Edit(*f)
		for len(s.Questions()) > 0 {
			if err := s.RemoveQuestion(0); err != nil {
				return err
			}
		}
	}

	title, header, err := loadDraft(draftPath, s)
	if err != nil {
		return err
	}
	f, err := s.Save(ctx, title, header)
	if err != nil {
		return err
	}
	return printJSON(f)
}

func (a *app) fill(ctx context.Context, id, answersPath string) error {
	var ans answerFile
	if err := readJSON(answersPath, &ans); err != nil {
		return err
	}

	s := session.New(a.api, a.log)
	if _, err := s.LoadForm(ctx, id); err != nil {
		return err
	}
	sh, err := s.Fill()
	if err != nil {
		return err
	}
	if err := replay(sh, ans); err != nil {
		return err
	}
	resp, err := sh.Submit(ctx)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
