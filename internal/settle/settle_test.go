package settle

import "testing"

func TestResolve_SingleWinnerScenario(t *testing.T) {
	// 3 players, stake 1000 each, 5% commission
	rolls := []Roll{
		{UserID: 1, Number: 100},
		{UserID: 2, Number: 6624},
		{UserID: 3, Number: 200},
	}

	res, err := Resolve(rolls, 3000, 500)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(res.WinnerIDs) != 1 || res.WinnerIDs[0] != 2 {
		t.Fatalf("winners = %v; want [2]", res.WinnerIDs)
	}
	if res.WinningNumber != 6624 {
		t.Fatalf("winning number = %d; want 6624", res.WinningNumber)
	}
	if res.Commission != 150 {
		t.Fatalf("commission = %d; want 150", res.Commission)
	}
	if res.PerWinnerShare != 2850 {
		t.Fatalf("share = %d; want 2850", res.PerWinnerShare)
	}
	if res.PerWinnerShare+res.Commission != 3000 {
		t.Fatalf("pot leaked: %d + %d != 3000", res.PerWinnerShare, res.Commission)
	}
}

func TestResolve_TieSplitsPot(t *testing.T) {
	rolls := []Roll{
		{UserID: 1, Number: 6624},
		{UserID: 2, Number: 6624},
		{UserID: 3, Number: 500},
	}

	res, err := Resolve(rolls, 3000, 500)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(res.WinnerIDs) != 2 {
		t.Fatalf("winners = %v; want both tied rollers", res.WinnerIDs)
	}
	// prize pool 2850 split two ways: 1425 each, no residue
	if res.PerWinnerShare != 1425 {
		t.Fatalf("share = %d; want 1425", res.PerWinnerShare)
	}
	if res.Commission != 150 {
		t.Fatalf("commission = %d; want 150", res.Commission)
	}
}

func TestResolve_OddResidueGoesToCommission(t *testing.T) {
	// pot 1001, no base commission: prize pool 1001 split between two
	// winners leaves 1 unit, which belongs to the house
	rolls := []Roll{
		{UserID: 7, Number: 9},
		{UserID: 8, Number: 9},
	}

	res, err := Resolve(rolls, 1001, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if res.PerWinnerShare != 500 {
		t.Fatalf("share = %d; want 500", res.PerWinnerShare)
	}
	if res.Commission != 1 {
		t.Fatalf("commission = %d; want 1", res.Commission)
	}
}

func TestResolve_Conservation(t *testing.T) {
	cases := []struct {
		name    string
		rolls   []Roll
		pot     int64
		rateBps int
	}{
		{"two way tie odd pool", []Roll{{1, 5}, {2, 5}, {3, 1}}, 2999, 500},
		{"three way tie", []Roll{{1, 4}, {2, 4}, {3, 4}}, 1000, 250},
		{"single winner", []Roll{{1, 9}, {2, 3}}, 200, 1000},
		{"zero commission", []Roll{{1, 9}, {2, 3}}, 200, 0},
		{"tiny pot", []Roll{{1, 2}, {2, 2}, {3, 2}}, 1, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Resolve(tc.rolls, tc.pot, tc.rateBps)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			total := res.PerWinnerShare*int64(len(res.WinnerIDs)) + res.Commission
			if total != tc.pot {
				t.Fatalf("credits %d + commission %d != pot %d",
					res.PerWinnerShare*int64(len(res.WinnerIDs)), res.Commission, tc.pot)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	rolls := []Roll{{3, 7}, {1, 7}, {2, 2}}

	first, err := Resolve(rolls, 900, 300)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Resolve(rolls, 900, 300)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if len(again.WinnerIDs) != len(first.WinnerIDs) ||
			again.WinnerIDs[0] != first.WinnerIDs[0] ||
			again.Commission != first.Commission ||
			again.PerWinnerShare != first.PerWinnerShare {
			t.Fatalf("resolution not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestResolve_NoRolls(t *testing.T) {
	if _, err := Resolve(nil, 100, 500); err != ErrNoRolls {
		t.Fatalf("err = %v; want ErrNoRolls", err)
	}
}
