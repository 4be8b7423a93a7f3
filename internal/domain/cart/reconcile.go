package cart

// Collapse は同一商品への変更を最後の1件に畳む。
// 出てきた順（最後に現れた位置）は保つ。
func Collapse(changes []PendingChange) []PendingChange {
	byProduct := make(map[int64]int, len(changes))
	out := make([]PendingChange, 0, len(changes))

	for _, c := range changes {
		if i, ok := byProduct[c.ProductID]; ok {
			// 同じ商品は新しい変更で置き換え、末尾へ動かす
			out = append(out[:i], out[i+1:]...)
			for pid, j := range byProduct {
				if j > i {
					byProduct[pid] = j - 1
				}
			}
		}
		byProduct[c.ProductID] = len(out)
		out = append(out, c)
	}

	return out
}

// Reconcile は base に変更バッチを適用した新しいリストを返す。
// removeは落とす、updateはquantityだけ置き換える、それ以外はそのまま。
// baseに無い商品への変更は黙って捨てる（update経由のaddはしない）。
// 同じbaseに同じchangesを2回適用しても結果は変わらない。
func Reconcile(base []Item, changes []PendingChange) []Item {
	collapsed := Collapse(changes)

	byProduct := make(map[int64]PendingChange, len(collapsed))
	for _, c := range collapsed {
		byProduct[c.ProductID] = c
	}

	out := make([]Item, 0, len(base))
	for _, it := range base {
		c, ok := byProduct[it.ID]
		if !ok {
			out = append(out, it)
			continue
		}

		switch c.Type {
		case ChangeTypeRemove:
			// 落とす
		case ChangeTypeUpdate:
			updated := it
			updated.Quantity = c.Quantity
			out = append(out, updated)
		default:
			out = append(out, it)
		}
	}

	return out
}
