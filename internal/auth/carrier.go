package auth

// Carrier はクライアント側でトークンを保持する場所の抽象。
// ブラウザセッション相当の短命ストアと永続Cookieの2系統を同じ操作で扱う。
// 実装はリクエスト単位で生成され、リクエスト間で共有されない。
type Carrier interface {
	// Get は指定名の値を返す。存在しない場合は空文字列を返す。
	Get(name string) string
	// Put は指定名に値を書き込む。同一リクエスト内の後続Getから見えること。
	Put(name, value string)
	// Forget は指定名の値を削除する。
	Forget(name string)
}

// CookieCarrier は永続Cookie側のキャリア。
// 「ログイン状態を維持する」設定フラグを追加で公開する。
// フラグが立っている場合のみ、セッション解決時に永続Cookie側もリフレッシュされる。
type CookieCarrier interface {
	Carrier
	// StayLoggedIn はユーザーがログイン維持を選択しているかを返す。
	StayLoggedIn() bool
}

// MemoryCarrier はテスト用のインメモリキャリア。
// HTTPコンテキストなしでブリッジの振る舞いを決定的に検証するために使う。
type MemoryCarrier struct {
	values map[string]string
	stay   bool
}

// NewMemoryCarrier は空のMemoryCarrierを生成する。
func NewMemoryCarrier() *MemoryCarrier {
	return &MemoryCarrier{values: make(map[string]string)}
}

// Get は指定名の値を返す。存在しない場合は空文字列を返す。
func (c *MemoryCarrier) Get(name string) string {
	return c.values[name]
}

// Put は指定名に値を書き込む。
func (c *MemoryCarrier) Put(name, value string) {
	c.values[name] = value
}

// Forget は指定名の値を削除する。
func (c *MemoryCarrier) Forget(name string) {
	delete(c.values, name)
}

// StayLoggedIn はログイン維持フラグを返す。
func (c *MemoryCarrier) StayLoggedIn() bool {
	return c.stay
}

// SetStayLoggedIn はログイン維持フラグを設定する。
func (c *MemoryCarrier) SetStayLoggedIn(stay bool) {
	c.stay = stay
}

// compile-time interface checks
var (
	_ Carrier       = (*MemoryCarrier)(nil)
	_ CookieCarrier = (*MemoryCarrier)(nil)
)
