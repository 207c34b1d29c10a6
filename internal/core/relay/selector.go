package relay

import (
	"sort"

	"github.com/spaolacci/murmur3"
)

// Selector 出口集合选择器
//
// 确定性的负载分摊选择：
//   - 相同输入总是得到相同的出口集合
//   - 每个实例最多被 ceil(numRelays*k/numInstances) 个中继选中
//   - k >= numInstances 时出口集合为全部实例
//
// 参与哈希的是调用方给出的稳定标识，而不是监听地址。
type Selector struct {
	seed uint32
}

// NewSelector 创建选择器
func NewSelector() *Selector {
	return &Selector{}
}

// NewSelectorWithSeed 创建指定哈希种子的选择器
func NewSelectorWithSeed(seed uint32) *Selector {
	return &Selector{seed: seed}
}

// score 计算 (service, id) 的哈希分数
func (s *Selector) score(service, id string) uint64 {
	buf := make([]byte, 0, len(service)+len(id)+1)
	buf = append(buf, service...)
	buf = append(buf, 0)
	buf = append(buf, id...)
	return murmur3.Sum64WithSeed(buf, s.seed)
}

// Rank 按 (service, id) 哈希分数升序排列，分数相同时按 id
func (s *Selector) Rank(service string, ids []string) []string {
	type scored struct {
		id    string
		score uint64
	}

	items := make([]scored, len(ids))
	for i, id := range ids {
		items[i] = scored{id: id, score: s.score(service, id)}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score < items[j].score
		}
		return items[i].id < items[j].id
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.id
	}
	return out
}

// Assign 计算全部中继的出口集合
//
// 实例按哈希排成环，第 p 个中继（按哈希排序）占用环上
// [p*k, p*k+k) 位置（取模）。每个出口集合按 id 排序返回。
func (s *Selector) Assign(relays []string, service string, instances []string, k int) map[string][]string {
	out := make(map[string][]string, len(relays))
	if len(relays) == 0 {
		return out
	}

	uniq := dedupe(instances)
	n := len(uniq)
	if k >= n {
		full := sortedCopy(uniq)
		for _, r := range relays {
			out[r] = append([]string(nil), full...)
		}
		return out
	}
	if k <= 0 {
		for _, r := range relays {
			out[r] = []string{}
		}
		return out
	}

	ring := s.Rank(service, uniq)
	order := s.Rank(service, relays)
	for p, r := range order {
		egress := make([]string, 0, k)
		for j := 0; j < k; j++ {
			egress = append(egress, ring[(p*k+j)%n])
		}
		sort.Strings(egress)
		out[r] = egress
	}
	return out
}

// Egress 计算单个中继的出口集合
func (s *Selector) Egress(relays []string, relay, service string, instances []string, k int) ([]string, error) {
	if k <= 0 {
		return nil, ErrInvalidKValue
	}
	egress, ok := s.Assign(relays, service, instances, k)[relay]
	if !ok {
		return nil, ErrUnknownRelay
	}
	return egress, nil
}

// LoadBound 返回单个实例被选中次数的上限 ceil(numRelays*k/numInstances)
func LoadBound(numRelays, numInstances, k int) int {
	if numInstances <= 0 {
		return 0
	}
	if k > numInstances {
		k = numInstances
	}
	return (numRelays*k + numInstances - 1) / numInstances
}

func sortedCopy(in []string) []string {
	out := dedupe(in)
	sort.Strings(out)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
