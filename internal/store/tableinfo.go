package store

const (
	UsersTableName = "users"

	UserIDColumn           = "id"
	UserUsernameColumn     = "username"
	UserPasswordHashColumn = "password_hash"
	UserIsAdminColumn      = "is_admin"
	UserCreatedAtColumn    = "created_at"
)

const (
	PostsTableName = "posts"

	PostIDColumn        = "id"
	PostAuthorIDColumn  = "author_id"
	PostContentColumn   = "content"
	PostVisibleToColumn = "visible_to"
	PostCreatedAtColumn = "created_at"
)

const (
	SessionsTableName = "sessions"

	SessionTokenHashColumn = "token_hash"
	SessionUserIDColumn    = "user_id"
	SessionUsernameColumn  = "username"
	SessionIsAdminColumn   = "is_admin"
	SessionCreatedAtColumn = "created_at"
)

const (
	ActivityTableName = "activity"

	ActivityIDColumn        = "id"
	ActivityTypeColumn      = "type"
	ActivityActorIDColumn   = "actor_id"
	ActivityActorNameColumn = "actor_name"
	ActivityPostIDColumn    = "post_id"
	ActivityAtColumn        = "at"
)
