package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
)

// ExpireEntries はパーティションに有効期限ポリシーを適用し, 削除したキーを返す.
// 最大保持期間を過ぎたエントリを削除した後, 件数が上限以下になるまで古い順に削除する.
func ExpireEntries(
	ctx context.Context, p domain.Partition, policy domain.ExpirationPolicy, now time.Time,
) ([]string, error) {
	if policy.MaxEntries <= 0 && policy.MaxAge <= 0 {
		return nil, nil
	}

	infos, err := p.Entries(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "list entries of %s", p.Name())
	}

	var removed []string
	remaining := len(infos)
	for _, info := range infos {
		expired := !policy.Fresh(info.StoredAt, now)
		overflow := policy.MaxEntries > 0 && remaining > policy.MaxEntries
		if !expired && !overflow {
			continue
		}

		ok, err := p.Delete(ctx, info.Key)
		if err != nil {
			return removed, errors.Wrapf(err, "expire %s from %s", info.Key, p.Name())
		}
		remaining--
		if ok {
			removed = append(removed, info.Key)
		}
	}
	return removed, nil
}
