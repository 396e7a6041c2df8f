package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hanpama/gqlgate/internal/engine"
	"github.com/hanpama/gqlgate/internal/eventbus"
	"github.com/hanpama/gqlgate/internal/logging"
	"github.com/hanpama/gqlgate/internal/otel"
	"github.com/hanpama/gqlgate/internal/server"
	"github.com/hanpama/gqlgate/internal/uploads"
)

const rootUsage = `gqlgate — GraphQL HTTP gateway

USAGE:
  gqlgate <command> [flags]

COMMANDS:
  serve            Run the gateway with the built-in demo schema
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -server.addr <addr>             HTTP listen address (default: :8080)
  -server.pretty                  Pretty-print JSON responses
  -server.timeout <duration>      Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body <bytes>        Max request body size (default: unlimited)
  -server.metadata-header <name>  Forward HTTP header to gRPC metadata. Repeatable
  -graphql.graphiql <bool>        Serve GraphiQL on bare GET requests (default: true)
  -graphql.get-queries <bool>     Allow query operations via GET (default: true)
  -log.debug                      Verbose development logging
  -otel.endpoint <addr>           OTLP collector endpoint
  -otel.service <name>            OpenTelemetry service name (default: gqlgate)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("gqlgate", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdServe(args []string) error {
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	maxBody := int64(0)
	graphiql := true
	getQueries := true
	debug := false
	otelEndpoint := ""
	otelService := "gqlgate"
	var metadataHeaders stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Int64Var(&maxBody, "server.max-body", maxBody, "Max request body size")
	fs.Var(&metadataHeaders, "server.metadata-header", "Forward HTTP header to gRPC metadata")
	fs.BoolVar(&graphiql, "graphql.graphiql", graphiql, "Serve GraphiQL on bare GET requests")
	fs.BoolVar(&getQueries, "graphql.get-queries", getQueries, "Allow query operations via GET")
	fs.BoolVar(&debug, "log.debug", debug, "Verbose development logging")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	eventbus.Use(eventbus.New())

	logger, err := logging.NewZapLogger(debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logging.Attach(logger)

	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	schema, err := demoSchema()
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	opts := []server.Option{
		server.WithGraphiQL(graphiql),
		server.WithGETQueries(getQueries),
		server.WithTimeout(timeout),
		server.WithMaxBodyBytes(maxBody),
		server.WithMetadataHeaders(metadataHeaders...),
	}
	if pretty {
		opts = append(opts, server.WithPretty())
	}
	handler := server.New(schema, opts...)

	log.Printf("gqlgate listening on %s", addr)
	return http.ListenAndServe(addr, handler)
}

const demoSDL = `
scalar Upload

type Query {
  hello: String!
  echo(message: String!): String!
}

type Mutation {
  readTextFile(file: Upload!): String!
}
`

// demoSchema is a minimal schema for exploring the gateway: a hello
// query, an echo query, and an upload-consuming mutation.
func demoSchema() (engine.Schema, error) {
	return engine.New(engine.ResolverMap{
		"Query.hello": engine.ValueResolver("Hello world"),
		"Query.echo": func(ctx context.Context, source any, args map[string]any) (any, error) {
			message, _ := args["message"].(string)
			return message, nil
		},
		"Mutation.readTextFile": func(ctx context.Context, source any, args map[string]any) (any, error) {
			upload, ok := args["file"].(uploads.Upload)
			if !ok {
				return nil, fmt.Errorf("file argument is not an upload")
			}
			content, err := io.ReadAll(upload.File)
			if err != nil {
				return nil, fmt.Errorf("read upload %q: %w", upload.Filename, err)
			}
			return string(content), nil
		},
	}, demoSDL)
}
