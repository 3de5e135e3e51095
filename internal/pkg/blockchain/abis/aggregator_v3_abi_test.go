package abis

import "testing"

func TestGetAggregatorV3ABI(t *testing.T) {
	parsed, err := GetAggregatorV3ABI()
	if err != nil {
		t.Fatalf("GetAggregatorV3ABI() error = %v", err)
	}

	for _, name := range []string{"latestRoundData", "decimals", "description"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Errorf("method %q missing from ABI", name)
		}
	}

	method := parsed.Methods["latestRoundData"]
	if got := len(method.Outputs); got != 5 {
		t.Errorf("latestRoundData outputs = %d, want 5", got)
	}

	again, err := GetAggregatorV3ABI()
	if err != nil || again != parsed {
		t.Error("GetAggregatorV3ABI() did not return the cached ABI")
	}
}

func TestParseABI_Invalid(t *testing.T) {
	if _, err := ParseABI("not json"); err == nil {
		t.Fatal("ParseABI() expected error for invalid JSON")
	}
}
