// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/lootsy/internal/model"
)

// DealRepository はディールデータの永続化インターフェース。
type DealRepository interface {
	// UpsertAll は(source, source_id)をキーにディールを1トランザクションでUPSERTする。
	// 既存行のidとcreated_atは維持する。バッチにおすすめが含まれる場合、
	// バッチ外の行のおすすめフラグを同じトランザクション内で解除する。
	// 行を削除することはない。書き込んだ行数（重複を除いた件数）を返す。
	UpsertAll(ctx context.Context, deals []model.Deal) (int, error)

	// List は条件に一致するディールを is_featured DESC, score DESC, updated_at DESC の順で返す。
	List(ctx context.Context, filter model.DealFilter) ([]model.Deal, error)

	// FindByID は指定IDのディールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Deal, error)

	// ListIDs は更新日時の新しい順にディールIDを返す。
	ListIDs(ctx context.Context, limit int) ([]string, error)
}

// ClickRepository はクリックイベントの永続化インターフェース。
type ClickRepository interface {
	// Create はクリックを記録する。
	Create(ctx context.Context, click *model.Click) error
}

// Pinger はデータベースの疎通確認用のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

var _ Pinger = (*sql.DB)(nil)
