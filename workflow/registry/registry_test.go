package registry

import "testing"

func TestBuiltinStepTypesRegistered(t *testing.T) {
	want := []string{
		"state_update", "shell_command", "conditional", "while_loop",
		"foreach", "break", "continue", "parallel_foreach",
		"user_message", "agent_prompt", "agent_response", "user_input",
		"mcp_call", "internal_mcp_call",
	}
	for _, stepType := range want {
		if _, ok := Get(stepType); !ok {
			t.Errorf("expected step type %q to be registered", stepType)
		}
	}
	if len(List()) != len(want) {
		t.Errorf("expected %d step types, got %d", len(want), len(List()))
	}
}

func TestServerVsClientSide(t *testing.T) {
	spec, _ := Get("shell_command")
	if spec.Side != SideServer {
		t.Errorf("expected shell_command to be server-side")
	}

	spec, _ = Get("user_message")
	if spec.Side != SideClient {
		t.Errorf("expected user_message to be client-side")
	}
}
