package order

import "testing"

func TestParseCommandLiterals(t *testing.T) {
	cases := []struct {
		in   string
		kind CommandKind
	}{
		{"NEWORDER", CmdNewOrder},
		{"neworder", CmdNewOrder},
		{"  NewOrder  ", CmdNewOrder},
		{"SHOWCATEGORIES", CmdShowCategories},
		{"VIEWCART", CmdViewCart},
		{"CARTCONFIRM", CmdCartConfirm},
		{"SKIP_LOCATION", CmdSkipLocation},
		{"skip_location", CmdSkipLocation},
		{"NEWADDRESS", CmdNewAddress},
	}
	for _, tc := range cases {
		cmd, ok := ParseCommand(tc.in)
		if !ok {
			t.Errorf("expected %q to parse", tc.in)
			continue
		}
		if cmd.Kind != tc.kind {
			t.Errorf("%q: expected kind %d, got %d", tc.in, tc.kind, cmd.Kind)
		}
	}
}

func TestParseCommandPrefixed(t *testing.T) {
	cases := []struct {
		in   string
		kind CommandKind
		id   int64
	}{
		{"CATEGORY_1", CmdCategory, 1},
		{"category_42", CmdCategory, 42},
		{"PRODUCT_7", CmdProduct, 7},
		{"P_7", CmdProduct, 7},
		{"p_12", CmdProduct, 12},
		{"REMOVEPRODUCT_3", CmdRemoveProduct, 3},
		{"RP_3", CmdRemoveProduct, 3},
		{"ADDRESS_9", CmdAddress, 9},
	}
	for _, tc := range cases {
		cmd, ok := ParseCommand(tc.in)
		if !ok {
			t.Errorf("expected %q to parse", tc.in)
			continue
		}
		if cmd.Kind != tc.kind || cmd.ID != tc.id {
			t.Errorf("%q: expected (%d, %d), got (%d, %d)", tc.in, tc.kind, tc.id, cmd.Kind, cmd.ID)
		}
	}
}

func TestParseCommandLocation(t *testing.T) {
	cmd, ok := ParseCommand("LOC 40.4165 -3.70256")
	if !ok || cmd.Kind != CmdLocation {
		t.Fatalf("expected location command, got ok=%v kind=%d", ok, cmd.Kind)
	}
	if cmd.Latitude != 40.4165 || cmd.Longitude != -3.70256 {
		t.Errorf("unexpected coordinates: %f, %f", cmd.Latitude, cmd.Longitude)
	}
}

func TestParseCommandRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"hello",
		"3",
		"CATEGORY_",
		"CATEGORY_abc",
		"CATEGORY_0",
		"CATEGORY_-1",
		"P_",
		"LOC 95 10",
		"LOC 10 190",
		"LOC 10",
		"NEWORDERS",
	} {
		if cmd, ok := ParseCommand(in); ok {
			t.Errorf("expected %q to be rejected, got kind %d", in, cmd.Kind)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	if qty, ok := ParseQuantity(" 3 "); !ok || qty != 3 {
		t.Errorf("expected 3, got (%d, %v)", qty, ok)
	}
	for _, in := range []string{"0", "-1", "abc", "1.5", ""} {
		if _, ok := ParseQuantity(in); ok {
			t.Errorf("expected %q to be rejected", in)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		minor int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{40, "$0.40"},
		{1000, "$10.00"},
		{1234, "$12.34"},
		{-250, "-$2.50"},
	}
	for _, tc := range cases {
		if got := FormatPrice(tc.minor); got != tc.want {
			t.Errorf("FormatPrice(%d): expected %q, got %q", tc.minor, tc.want, got)
		}
	}
}
