package task

import (
	"context"

	"github.com/hitoshi/taskman/internal/model"
)

// Cache はタスク単体の読み取りキャッシュのインターフェース。
// エントリは所有者IDとタスクIDの組で識別し、他ユーザーの参照でヒットしないようにする。
//
// 書き込みのたびに進む世代番号を持ち、読み込み開始時の世代が変わっていれば格納しない。
// 書き込みと並行した読み込みが古い行を書き戻すことはない。
type Cache interface {
	// Get はキャッシュ済みのタスクを返す。未登録の場合はfoundがfalseとなる。
	Get(ctx context.Context, ownerID, taskID string) (task *model.Task, found bool, err error)
	// Version はタスクの現在の世代を返す。書き込みがまだない場合は0。
	Version(ctx context.Context, ownerID, taskID string) (int64, error)
	// SetIfVersion は世代がversionのままの場合に限りタスクを格納する。キーにはtask.UserIDを用いる。
	SetIfVersion(ctx context.Context, task *model.Task, version int64) (stored bool, err error)
	// Invalidate は世代を進め、エントリを削除する。
	Invalidate(ctx context.Context, ownerID, taskID string) error
}

// NopCache は何もキャッシュしないCache実装。
type NopCache struct{}

// Get は常にミスを返す。
func (NopCache) Get(context.Context, string, string) (*model.Task, bool, error) {
	return nil, false, nil
}

// Version は常に0を返す。
func (NopCache) Version(context.Context, string, string) (int64, error) { return 0, nil }

// SetIfVersion は何も格納しない。
func (NopCache) SetIfVersion(context.Context, *model.Task, int64) (bool, error) { return false, nil }

// Invalidate は何もしない。
func (NopCache) Invalidate(context.Context, string, string) error { return nil }

var _ Cache = NopCache{}
