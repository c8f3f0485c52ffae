package app

import (
	"fmt"

	"github.com/hitoshi/myftc/internal/config"
)

// Command はmyftcのサブコマンド。
type Command string

const (
	// CommandServe はWebサーバーを起動する。引数なしの場合もこれになる。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを定期的に削除する。
	CommandWorker Command = "worker"
	// CommandMigrate はsessionsテーブルのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を確認する。
	// distrolessイメージのDocker HEALTHCHECK用で、設定の読み込みを行わない。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数が空または不明な場合はCommandServeを返す。2番目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// checkBackend はセッションストアの種類に対してコマンドを実行できるかを返す。
//   - worker: 別プロセスから削除できるのはPostgreSQLのみ。badgerとmemoryはserveが自ら掃除する
//   - migrate: スキーマを持つのはPostgreSQLのみ。それ以外はskip=trueで何もしない
func (c Command) checkBackend(backend string) (skip bool, err error) {
	if backend == config.SessionBackendPostgres {
		return false, nil
	}
	switch c {
	case CommandWorker:
		return false, fmt.Errorf("worker requires the postgres session backend; %s sessions are cleaned by serve", backend)
	case CommandMigrate:
		return true, nil
	default:
		return false, nil
	}
}
