package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/averro/voiceline/internal/tools"
	"github.com/averro/voiceline/pkg/types"
)

func echoTool(name string) tools.Tool {
	return tools.Tool{
		Definition: types.ToolDefinition{
			Name:        name,
			Description: "echoes its arguments",
			Parameters:  map[string]any{"type": "object"},
		},
		Handler: func(_ context.Context, args string) (string, error) {
			return args, nil
		},
	}
}

func TestRegisterBuiltin_AndExecute(t *testing.T) {
	t.Parallel()
	reg := tools.NewRegistry()
	defer reg.Close()

	if err := reg.RegisterBuiltin(echoTool("echo")); err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}

	args := `{"text":"hello"}`
	res, err := reg.Execute(context.Background(), "echo", args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Content)
	}
	if res.Content != args {
		t.Errorf("Content = %q, want %q", res.Content, args)
	}
}

func TestRegisterBuiltin_DuplicateName(t *testing.T) {
	t.Parallel()
	reg := tools.NewRegistry()
	defer reg.Close()

	if err := reg.RegisterBuiltin(echoTool("dup")); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterBuiltin(echoTool("dup")); err == nil {
		t.Error("expected error for duplicate tool name")
	}
}

func TestRegisterBuiltin_Invalid(t *testing.T) {
	t.Parallel()
	reg := tools.NewRegistry()
	defer reg.Close()

	if err := reg.RegisterBuiltin(tools.Tool{}); err == nil {
		t.Error("expected error for unnamed tool")
	}
	if err := reg.RegisterBuiltin(tools.Tool{
		Definition: types.ToolDefinition{Name: "no-handler"},
	}); err == nil {
		t.Error("expected error for tool without handler")
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	t.Parallel()
	reg := tools.NewRegistry()
	defer reg.Close()

	_, err := reg.Execute(context.Background(), "nope", "{}")
	if !errors.Is(err, tools.ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound", err)
	}
}

func TestExecute_HandlerErrorBecomesToolError(t *testing.T) {
	t.Parallel()
	reg := tools.NewRegistry()
	defer reg.Close()

	err := reg.RegisterBuiltin(tools.Tool{
		Definition: types.ToolDefinition{Name: "fails"},
		Handler: func(context.Context, string) (string, error) {
			return "", errors.New("disk full")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := reg.Execute(context.Background(), "fails", "{}")
	if err != nil {
		t.Fatalf("Execute returned transport error for handler failure: %v", err)
	}
	if !res.IsError {
		t.Fatal("IsError = false, want true")
	}
	if res.Content != "disk full" {
		t.Errorf("Content = %q, want handler error message", res.Content)
	}
}

func TestDefinitions(t *testing.T) {
	t.Parallel()
	reg := tools.NewRegistry()
	defer reg.Close()

	if got := reg.Definitions(); len(got) != 0 {
		t.Fatalf("empty registry has %d definitions", len(got))
	}

	if err := reg.RegisterBuiltin(echoTool("a"), echoTool("b")); err != nil {
		t.Fatal(err)
	}
	defs := reg.Definitions()
	if len(defs) != 2 {
		t.Fatalf("Definitions returned %d entries, want 2", len(defs))
	}
	for _, d := range defs {
		if _, err := json.Marshal(d.Parameters); err != nil {
			t.Errorf("parameters of %q not JSON-encodable: %v", d.Name, err)
		}
	}
}

func TestConnectServer_Validation(t *testing.T) {
	t.Parallel()
	reg := tools.NewRegistry()
	defer reg.Close()
	ctx := context.Background()

	if err := reg.ConnectServer(ctx, tools.ServerConfig{}); err == nil {
		t.Error("expected error for unnamed server")
	}
	if err := reg.ConnectServer(ctx, tools.ServerConfig{
		Name: "s", Transport: "carrier-pigeon",
	}); err == nil {
		t.Error("expected error for unknown transport")
	}
	if err := reg.ConnectServer(ctx, tools.ServerConfig{
		Name: "s", Transport: tools.TransportStdio,
	}); err == nil {
		t.Error("expected error for stdio server without command")
	}
	if err := reg.ConnectServer(ctx, tools.ServerConfig{
		Name: "s", Transport: tools.TransportStreamableHTTP,
	}); err == nil {
		t.Error("expected error for http server without url")
	}
}
