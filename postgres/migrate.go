package postgres

import (
	"context"
	"fmt"
)

type table struct {
	model       any
	foreignKeys []string
}

var tables = []table{
	{model: (*user)(nil)},
	{model: (*conversation)(nil)},
	{
		model: (*member)(nil),
		foreignKeys: []string{
			`("conversation_id") REFERENCES "conversations" ("id") ON DELETE CASCADE`,
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
		},
	},
	{
		model: (*message)(nil),
		foreignKeys: []string{
			`("conversation_id") REFERENCES "conversations" ("id") ON DELETE CASCADE`,
			`("sender_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
		},
	},
	{
		model: (*reaction)(nil),
		foreignKeys: []string{
			`("message_id") REFERENCES "messages" ("id") ON DELETE CASCADE`,
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
		},
	},
}

type index struct {
	model   any
	name    string
	unique  bool
	columns []string
}

var indexes = []index{
	// One direct conversation per unordered pair. Groups leave it NULL.
	{model: (*conversation)(nil), name: "conversations_direct_key_idx", unique: true, columns: []string{"direct_key"}},
	{model: (*member)(nil), name: "conversation_members_user_id_idx", columns: []string{"user_id"}},
	{model: (*message)(nil), name: "messages_conversation_order_idx", columns: []string{"conversation_id", "created_at", "seq"}},
	{model: (*reaction)(nil), name: "message_reactions_message_user_idx", unique: true, columns: []string{"message_id", "user_id"}},
}

// Migrate creates the tables and indexes that do not exist yet.
func (pg *Postgres) Migrate(ctx context.Context) error {
	for _, t := range tables {
		q := pg.bun.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, idx := range indexes {
		q := pg.bun.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
