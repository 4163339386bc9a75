package tier

import "testing"

func TestSelectBySize(t *testing.T) {
	cases := []struct {
		size uint64
		ext  string
		want ID
	}{
		{100, "", Inline},
		{4 * 1024, "", Granular},
		{10 * 1024 * 1024, "", Standard},
		{500 * 1024 * 1024, "", Large},
		{5 * 1024 * 1024 * 1024, "", Jumbo},
	}
	for _, c := range cases {
		got := Select(c.size, c.ext)
		if got.ID != c.want {
			t.Errorf("Select(%d, %q) = %v, want %v", c.size, c.ext, got.ID, c.want)
		}
	}
}

func TestExtensionOverridesTakePrecedence(t *testing.T) {
	if got := Select(100, "go"); got.ID != Granular {
		t.Errorf("tiny .go file should be Granular, got %v", got.ID)
	}
	if got := Select(100, ".GO"); got.ID != Granular {
		t.Errorf("extension match should be case-insensitive, got %v", got.ID)
	}
	if got := Select(100, "iso"); got.ID != Jumbo {
		t.Errorf("tiny .iso file should be Jumbo, got %v", got.ID)
	}
	if got := Select(10*1024*1024*1024, "iso"); got.ID != Jumbo {
		t.Errorf("large .iso should be Jumbo, got %v", got.ID)
	}
}

func TestGetParams(t *testing.T) {
	p := Get(Granular)
	if p.MinSize != 2*1024 || p.AvgSize != 4*1024 || p.MaxSize != 8*1024 {
		t.Errorf("unexpected granular params: %+v", p)
	}
}
