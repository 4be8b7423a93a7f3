package cart

// Item は表示用のカート1行。
// 認証カートは商品テーブルとJOINした現在値、ゲストカートは追加時点のスナップショット。
// どちらも同じ形で返す。
type Item struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Image    string `json:"image"`
	Quantity int64  `json:"quantity"`
}

type ChangeType string

const (
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeRemove ChangeType = "remove"
)

// PendingChange は未保存の編集1件。
// 同じ商品への変更は新しいものが古いものを上書きする。
type PendingChange struct {
	ProductID int64      `json:"product_id"`
	Type      ChangeType `json:"type"`
	Quantity  int64      `json:"quantity,omitempty"`
}
