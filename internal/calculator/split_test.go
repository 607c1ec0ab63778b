package calculator

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func equalInputs(members ...string) []SplitInput {
	inputs := make([]SplitInput, len(members))
	for i, m := range members {
		inputs[i] = SplitInput{MemberID: m}
	}
	return inputs
}

func TestCalculateSplits(t *testing.T) {
	tests := []struct {
		name    string
		total   string
		mode    SplitMode
		inputs  []SplitInput
		want    map[string]string
		wantErr bool
	}{
		{
			name:   "equal split with no remainder",
			total:  "90.00",
			mode:   SplitEqual,
			inputs: equalInputs("alice", "bob", "charlie"),
			want:   map[string]string{"alice": "30", "bob": "30", "charlie": "30"},
		},
		{
			name:   "equal split assigns remainder to last participant",
			total:  "100.00",
			mode:   SplitEqual,
			inputs: equalInputs("alice", "bob", "charlie"),
			// 100/3 rounds to 33.33; charlie absorbs the extra cent
			want: map[string]string{"alice": "33.33", "bob": "33.33", "charlie": "33.34"},
		},
		{
			name:   "single participant takes everything",
			total:  "12.34",
			mode:   SplitEqual,
			inputs: equalInputs("alice"),
			want:   map[string]string{"alice": "12.34"},
		},
		{
			name:  "percentage split",
			total: "200.00",
			mode:  SplitPercentage,
			inputs: []SplitInput{
				{MemberID: "alice", Percentage: dec("50")},
				{MemberID: "bob", Percentage: dec("30")},
				{MemberID: "charlie", Percentage: dec("20")},
			},
			want: map[string]string{"alice": "100", "bob": "60", "charlie": "40"},
		},
		{
			name:  "percentage split remainder goes to last",
			total: "100.00",
			mode:  SplitPercentage,
			inputs: []SplitInput{
				{MemberID: "alice", Percentage: dec("33.33")},
				{MemberID: "bob", Percentage: dec("33.33")},
				{MemberID: "charlie", Percentage: dec("33.34")},
			},
			want: map[string]string{"alice": "33.33", "bob": "33.33", "charlie": "33.34"},
		},
		{
			name:  "custom split passes amounts through rounded",
			total: "60.00",
			mode:  SplitCustom,
			inputs: []SplitInput{
				{MemberID: "alice", Amount: dec("40.005")},
				{MemberID: "bob", Amount: dec("19.99")},
			},
			want: map[string]string{"alice": "40.01", "bob": "19.99"},
		},
		{
			name:    "zero total rejected",
			total:   "0",
			mode:    SplitEqual,
			inputs:  equalInputs("alice"),
			wantErr: true,
		},
		{
			name:    "no participants rejected",
			total:   "10.00",
			mode:    SplitEqual,
			inputs:  nil,
			wantErr: true,
		},
		{
			name:    "unknown mode rejected",
			total:   "10.00",
			mode:    SplitMode("thirds"),
			inputs:  equalInputs("alice"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := CalculateSplits(dec(tt.total), tt.mode, tt.inputs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CalculateSplits() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(shares) != len(tt.want) {
				t.Fatalf("got %d shares, want %d", len(shares), len(tt.want))
			}
			for _, s := range shares {
				want, ok := tt.want[s.MemberID]
				if !ok {
					t.Errorf("unexpected share for %q", s.MemberID)
					continue
				}
				if !s.Amount.Equal(dec(want)) {
					t.Errorf("%s share = %s, want %s", s.MemberID, s.Amount, want)
				}
			}
			if sum := SumShares(shares); !sum.Equal(dec(tt.total)) {
				t.Errorf("shares sum to %s, want %s", sum, tt.total)
			}
		})
	}
}

// Equal mode must produce n amounts summing exactly to the total, with a
// spread of at most one cent, for every participant count we allow.
func TestCalculateSplits_EqualExactSum(t *testing.T) {
	totals := []string{"0.01", "0.99", "1.00", "10.01", "99.97", "123.45", "999999.99"}

	for _, total := range totals {
		for n := 1; n <= 50; n++ {
			members := make([]SplitInput, n)
			for i := range members {
				members[i] = SplitInput{MemberID: fmt.Sprintf("m%d", i)}
			}

			shares, err := CalculateSplits(dec(total), SplitEqual, members)
			if err != nil {
				t.Fatalf("total=%s n=%d: %v", total, n, err)
			}

			if sum := SumShares(shares); !sum.Equal(dec(total)) {
				t.Errorf("total=%s n=%d: shares sum to %s", total, n, sum)
			}

			min, max := shares[0].Amount, shares[0].Amount
			for _, s := range shares[1:] {
				if s.Amount.LessThan(min) {
					min = s.Amount
				}
				if s.Amount.GreaterThan(max) {
					max = s.Amount
				}
			}
			if max.Sub(min).GreaterThan(dec("0.01")) {
				t.Errorf("total=%s n=%d: spread %s exceeds one cent", total, n, max.Sub(min))
			}
		}
	}
}
