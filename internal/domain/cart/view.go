package cart

// View は表示用のカート全体。
// TotalItemsとCartTotalは毎回itemsから計算する。保存はしない。
type View struct {
	Items      []Item `json:"items"`
	TotalItems int64  `json:"total_items"`
	CartTotal  int64  `json:"cart_total"`
}

// BuildView はitemsから集計値を計算してViewを作る。
func BuildView(items []Item) View {
	if items == nil {
		items = []Item{}
	}

	var totalItems int64 = 0
	var cartTotal int64 = 0

	for _, it := range items {
		totalItems += it.Quantity
		cartTotal += it.Price * it.Quantity
	}

	return View{
		Items:      items,
		TotalItems: totalItems,
		CartTotal:  cartTotal,
	}
}
