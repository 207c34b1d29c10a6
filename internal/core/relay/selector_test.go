package relay

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labels(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return out
}

// TestSelector_Deterministic 测试相同输入得到相同出口集合
func TestSelector_Deterministic(t *testing.T) {
	relays := labels("relay", 7)
	instances := labels("steve", 10)

	a := NewSelector().Assign(relays, "steve", instances, 3)
	b := NewSelector().Assign(relays, "steve", instances, 3)
	assert.Equal(t, a, b)

	// 输入顺序不影响结果
	reversed := make([]string, len(instances))
	for i, v := range instances {
		reversed[len(instances)-1-i] = v
	}
	c := NewSelector().Assign(relays, "steve", reversed, 3)
	assert.Equal(t, a, c)

	t.Log("✅ 出口选择是确定性的")
}

// TestSelector_FullCoverage 测试 k 不小于实例数时出口集合为全部实例
func TestSelector_FullCoverage(t *testing.T) {
	relays := labels("relay", 5)

	got := NewSelector().Assign(relays, "bob", []string{"bob-0"}, 5)
	require.Len(t, got, 5)
	for _, r := range relays {
		assert.Equal(t, []string{"bob-0"}, got[r])
	}

	instances := []string{"c", "a", "b"}
	got = NewSelector().Assign(relays, "bob", instances, 3)
	for _, r := range relays {
		assert.Equal(t, []string{"a", "b", "c"}, got[r])
	}
}

// TestSelector_LoadBound 测试每个实例被选中次数不超过上限
func TestSelector_LoadBound(t *testing.T) {
	cases := []struct {
		relays, instances, k int
	}{
		{5, 3, 2},
		{3, 3, 2},
		{10, 4, 1},
		{7, 10, 3},
		{1, 8, 5},
		{20, 6, 4},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("R%d_n%d_k%d", tc.relays, tc.instances, tc.k), func(t *testing.T) {
			relays := labels("relay", tc.relays)
			instances := labels("svc", tc.instances)
			got := NewSelector().Assign(relays, "svc", instances, tc.k)

			load := make(map[string]int)
			for _, r := range relays {
				egress := got[r]
				require.Len(t, egress, tc.k)

				seen := make(map[string]bool)
				for _, inst := range egress {
					assert.False(t, seen[inst], "egress set has duplicates")
					seen[inst] = true
					load[inst]++
				}
			}

			bound := LoadBound(tc.relays, tc.instances, tc.k)
			for inst, l := range load {
				assert.LessOrEqual(t, l, bound, "instance %s", inst)
			}
		})
	}
}

// TestSelector_ServiceSpread 测试不同服务的出口集合相互独立
func TestSelector_ServiceSpread(t *testing.T) {
	s := NewSelector()
	relays := labels("relay", 4)
	instances := labels("x", 8)

	a := s.Assign(relays, "steve", instances, 2)
	b := s.Assign(relays, "mary", instances, 2)
	assert.NotEqual(t, a, b)

	seeded := NewSelectorWithSeed(42).Assign(relays, "steve", instances, 2)
	assert.NotEqual(t, a, seeded)
}

// TestSelector_Egress 测试单个中继的出口集合
func TestSelector_Egress(t *testing.T) {
	s := NewSelector()
	relays := labels("relay", 3)
	instances := labels("svc", 6)

	all := s.Assign(relays, "svc", instances, 2)
	for _, r := range relays {
		egress, err := s.Egress(relays, r, "svc", instances, 2)
		require.NoError(t, err)
		assert.Equal(t, all[r], egress)
	}

	_, err := s.Egress(relays, "relay-9", "svc", instances, 2)
	assert.ErrorIs(t, err, ErrUnknownRelay)
	_, err = s.Egress(relays, "relay-0", "svc", instances, 0)
	assert.ErrorIs(t, err, ErrInvalidKValue)
}

// TestLoadBound 测试上限计算
func TestLoadBound(t *testing.T) {
	assert.Equal(t, 4, LoadBound(5, 3, 2))
	assert.Equal(t, 5, LoadBound(5, 1, 5))
	assert.Equal(t, 1, LoadBound(1, 8, 5))
	assert.Equal(t, 0, LoadBound(3, 0, 1))
}
