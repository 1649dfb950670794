package deal

import "github.com/hitoshi/lootsy/internal/model"

// EnsureOneFeatured はバッチにおすすめが1件も無い場合、スコア最大のディールをおすすめにする。
// 同点の場合は入力順で先頭のものを選ぶ。既におすすめがある場合は何もしない
// （複数のおすすめがあっても1件に絞らない）。入力スライスは変更しない。
func EnsureOneFeatured(deals []model.Deal) []model.Deal {
	out := make([]model.Deal, len(deals))
	copy(out, deals)
	if len(out) == 0 {
		return out
	}

	for _, d := range out {
		if d.IsFeatured {
			return out
		}
	}

	best := 0
	for i := 1; i < len(out); i++ {
		if out[i].Score > out[best].Score {
			best = i
		}
	}
	out[best].IsFeatured = true
	return out
}

// DedupeByIdentity は(source, source_id)が重複するディールを1件にまとめる。
// 値は後に出現したものを採用し、位置は最初の出現位置を保つ。
// おすすめフラグはいずれかの出現が真であれば真とする。入力スライスは変更しない。
func DedupeByIdentity(deals []model.Deal) []model.Deal {
	type identity struct{ source, sourceID string }

	out := make([]model.Deal, 0, len(deals))
	index := make(map[identity]int, len(deals))
	for _, d := range deals {
		key := identity{d.Source, d.SourceID}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, d)
			continue
		}
		featured := out[i].IsFeatured || d.IsFeatured
		out[i] = d
		out[i].IsFeatured = featured
	}
	return out
}
