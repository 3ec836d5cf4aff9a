package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"

	"vanillasomethin/sitecms/internal/config"
	"vanillasomethin/sitecms/internal/editor"
	"vanillasomethin/sitecms/pkg/contentproto"
)

const ContentCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Content control for the site's content.json.

The server url and admin token default to SITE_URL and SITE_ADMIN_TOKEN,
read from the environment or the .env file.

Usage:
    contentctl pull [--url=<url>] [--token=<token>] [--out=<file>] [--env-file=<file>]
    contentctl validate <file>
    contentctl diff [--url=<url>] [--token=<token>] [--env-file=<file>] <file>
    contentctl push [--url=<url>] [--token=<token>] [--env-file=<file>]
        [--message=<message>] [--timeout=<timeout>] <file>
    contentctl section show <section> <file>
    contentctl section add <section> <file>
    contentctl section remove <section> <index> <file>
    contentctl section set <section> [--item=<index>] <field> <value> <file>

Options:
    -h --help              Show this screen.
    --version              Show version.
    --url=<url>            Site server url.
    --token=<token>        Admin token.
    --out=<file>           Write the document here instead of stdout.
    --env-file=<file>      Path to a .env file [default: .env].
    --message=<message>    Commit message [default: Update content.json from admin panel].
    --timeout=<timeout>    Give up on a save after this long [default: 30s].
    --item=<index>         Item of a list section [default: 0].

Sections: team, services, caseStudies, contact.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ContentCtlVersion)
	if err != nil {
		panic(err)
	}

	if pull_, _ := opts.Bool("pull"); pull_ {
		pull(opts)
	} else if validate_, _ := opts.Bool("validate"); validate_ {
		validate(opts)
	} else if diff_, _ := opts.Bool("diff"); diff_ {
		diff(opts)
	} else if push_, _ := opts.Bool("push"); push_ {
		push(opts)
	} else if section_, _ := opts.Bool("section"); section_ {
		section(opts)
	}
}

// backend builds the API client from flags, falling back to the environment
func backend(opts docopt.Opts) *editor.HTTPBackend {
	envFile, _ := opts.String("--env-file")
	settings, err := config.LoadClientSettings(envFile)
	if err != nil {
		Err.Fatalf("%s", err)
	}
	if url, _ := opts.String("--url"); url != "" {
		settings.URL = url
	}
	if token, _ := opts.String("--token"); token != "" {
		settings.Token = token
	}
	if settings.Token == "" {
		Err.Printf("No admin token given; requests only succeed against an open admin surface")
	}
	return editor.NewHTTPBackend(settings.URL, settings.Token, &http.Client{Timeout: 2 * time.Minute})
}

// loadSession opens an edit session against the server
func loadSession(ctx context.Context, opts docopt.Opts, sessionOpts ...editor.SessionOption) *editor.Session {
	session := editor.NewSession(backend(opts), sessionOpts...)
	Out.Printf("%s", editor.StatusLoading)
	if err := session.Load(ctx); err != nil {
		Err.Fatalf("%s: %s", editor.StatusError, err)
	}
	return session
}

func readFile(opts docopt.Opts) string {
	path, _ := opts.String("<file>")
	data, err := os.ReadFile(path)
	if err != nil {
		Err.Fatalf("%s", err)
	}
	return string(data)
}

// pull writes the committed document, pretty printed
func pull(opts docopt.Opts) {
	session := loadSession(context.Background(), opts)
	view := session.View()

	out, _ := opts.String("--out")
	if out == "" {
		fmt.Fprintln(os.Stdout, view.Buffer)
		return
	}
	if err := os.WriteFile(out, []byte(view.Buffer+"\n"), 0644); err != nil {
		Err.Fatalf("%s", err)
	}
	Out.Printf("Wrote %s (sha %s)", out, view.SHA)
}

// validate checks a local file the way the editor does before saving
func validate(opts docopt.Opts) {
	if message := editor.ValidationMessage(readFile(opts)); message != "" {
		Err.Printf("%s", message)
		os.Exit(1)
	}
	Out.Printf("%s", editor.MsgValid)
}

// diff shows what pushing a local file would change
func diff(opts docopt.Opts) {
	content := readFile(opts)
	if message := editor.ValidationMessage(content); message != "" {
		Err.Fatalf("%s", message)
	}

	preview, err := backend(opts).Diff(context.Background(), contentproto.PublishRequest{Content: content})
	if err != nil {
		Err.Fatalf("%s", err)
	}
	if !preview.Changed {
		Out.Printf("No changes against %s", preview.SHA)
		return
	}
	Out.Printf("%d changes against %s", len(preview.Operations), preview.SHA)
	for _, op := range preview.Operations {
		if op.Value != nil {
			Out.Printf("%s %s %s", op.Op, op.Path, op.Value)
		} else if op.From != "" {
			Out.Printf("%s %s <- %s", op.Op, op.Path, op.From)
		} else {
			Out.Printf("%s %s", op.Op, op.Path)
		}
	}
}

// push commits a local file. Interrupting cancels the save.
func push(opts docopt.Opts) {
	content := readFile(opts)

	timeoutStr, _ := opts.String("--timeout")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		Err.Fatalf("invalid --timeout: %s", err)
	}

	session := loadSession(context.Background(), opts, editor.WithSaveTimeout(timeout))
	if err := session.Edit(content); err != nil {
		Err.Fatalf("%s", err)
	}
	if view := session.View(); view.ValidationError != "" {
		Err.Fatalf("%s", view.ValidationError)
	}
	message, _ := opts.String("--message")
	session.SetMessage(message)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		if _, ok := <-interrupt; ok && session.Cancel() {
			Err.Printf("Cancelling save")
		}
	}()

	Out.Printf("%s", editor.StatusSaving)
	if err := session.Save(context.Background()); err != nil {
		Err.Fatalf("%s: %s", editor.StatusError, err)
	}
	Out.Printf("%s", session.View().Status)
}

// section edits one cms section of a local file in place
func section(opts docopt.Opts) {
	path, _ := opts.String("<file>")
	key, _ := opts.String("<section>")
	content := readFile(opts)
	if message := editor.ValidationMessage(content); message != "" {
		Err.Fatalf("%s", message)
	}

	if show, _ := opts.Bool("show"); show {
		sec, err := editor.FindSection(key)
		if err != nil {
			Err.Fatalf("%s", err)
		}
		items, err := editor.Items(content, key)
		if err != nil {
			Err.Fatalf("%s", err)
		}
		for i, item := range items {
			if sec.List {
				Out.Printf("[%d]", i)
			}
			for _, f := range sec.Fields {
				Out.Printf("  %s: %q", f.Key, item[f.Key])
			}
		}
		return
	}

	var updated string
	var err error
	if add, _ := opts.Bool("add"); add {
		updated, err = editor.AddItem(content, key)
	} else if remove, _ := opts.Bool("remove"); remove {
		updated, err = editor.RemoveItem(content, key, intArg(opts, "<index>"))
	} else if set, _ := opts.Bool("set"); set {
		field, _ := opts.String("<field>")
		value, _ := opts.String("<value>")
		updated, err = editor.SetField(content, key, intArg(opts, "--item"), field, value)
	}
	if err != nil {
		Err.Fatalf("%s", err)
	}

	if err := os.WriteFile(path, []byte(updated+"\n"), 0644); err != nil {
		Err.Fatalf("%s", err)
	}
	Out.Printf("Updated %s in %s", key, path)
}

func intArg(opts docopt.Opts, name string) int {
	value, _ := opts.String(name)
	n, err := strconv.Atoi(value)
	if err != nil {
		Err.Fatalf("invalid %s: %s", name, value)
	}
	return n
}
