package nodeconfig

import "testing"

func TestThreshold(t *testing.T) {
	cases := []struct {
		peers int
		want  int
	}{
		{3, 2},
		{5, 3},
		{1, 1},
		{7, 4},
	}
	for _, c := range cases {
		cfg := Config{PeerCount: c.peers}
		if got := cfg.Threshold(); got != c.want {
			t.Errorf("Threshold() with peer_count=%d = %d, want %d", c.peers, got, c.want)
		}
	}
}

func TestIsLeaderRotatesByHeight(t *testing.T) {
	cfg := Config{PeerCount: 3, NodeIndex: 1}
	cases := []struct {
		height uint64
		want   bool
	}{
		{0, false},
		{1, true},
		{2, false},
		{3, false},
		{4, true},
	}
	for _, c := range cases {
		if got := cfg.IsLeader(c.height); got != c.want {
			t.Errorf("IsLeader(%d) = %v, want %v", c.height, got, c.want)
		}
	}
}
