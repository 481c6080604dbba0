package model

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestRecordEncodesNonFiniteValues(t *testing.T) {
	r := Record{
		ActionID:   "a1",
		ActionType: "move",
		Result:     Block,
		Parameters: map[string]float64{"speed": math.NaN(), "load": math.Inf(1), "tilt": 3},
		Checks: []Check{
			{Boundary: "speed", Parameter: "speed", Value: math.NaN(), Message: "speed=NaN is not a number"},
			{Boundary: "depth", Parameter: "depth", Value: math.Inf(-1), Passed: false},
		},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got struct {
		ActionID   string         `json:"action_id"`
		Result     string         `json:"result"`
		Parameters map[string]any `json:"parameters"`
		Checks     []struct {
			Boundary string `json:"boundary"`
			Value    any    `json:"value"`
		} `json:"boundary_results"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, data)
	}
	if got.ActionID != "a1" || got.Result != "BLOCK" {
		t.Errorf("lost fields: %s", data)
	}
	if got.Parameters["speed"] != "NaN" || got.Parameters["load"] != "+Inf" || got.Parameters["tilt"] != float64(3) {
		t.Errorf("unexpected parameters %v", got.Parameters)
	}
	if len(got.Checks) != 2 || got.Checks[0].Value != "NaN" || got.Checks[1].Value != "-Inf" {
		t.Errorf("unexpected checks %+v", got.Checks)
	}
	if strings.Count(string(data), `"value"`) != 2 {
		t.Errorf("value key duplicated: %s", data)
	}
}

func TestViolationEncodesNonFiniteValue(t *testing.T) {
	data, err := json.Marshal([]Violation{{Boundary: "speed", Parameter: "speed", Value: math.Inf(1), Message: "m"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"value":"+Inf"`) {
		t.Errorf("unexpected encoding %s", data)
	}
}

func TestRecordNilParametersStayNull(t *testing.T) {
	data, err := json.Marshal(Record{ActionID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"parameters":null`) {
		t.Errorf("unexpected encoding %s", data)
	}
}
