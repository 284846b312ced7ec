package usecase

import "sync"

// background は1つのイベントに紐づくバックグラウンド処理 (waitUntil) を追跡する.
// 全体の WaitGroup にも登録され, シャットダウン時の待ち合わせに使われる.
type background struct {
	parent *sync.WaitGroup
	wg     sync.WaitGroup
	done   chan struct{}
}

func newBackground(parent *sync.WaitGroup) *background {
	return &background{parent: parent, done: make(chan struct{})}
}

// Go は fn をバックグラウンドで実行する. seal の前にのみ呼び出すこと.
func (b *background) Go(fn func()) {
	b.parent.Add(1)
	b.wg.Add(1)
	go func() {
		defer b.parent.Done()
		defer b.wg.Done()
		fn()
	}()
}

// seal は登録済みの処理がすべて終わった時点で done を閉じる.
func (b *background) seal() <-chan struct{} {
	go func() {
		b.wg.Wait()
		close(b.done)
	}()
	return b.done
}
