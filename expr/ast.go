package expr

type expr interface {
	eval(in *interp, e *env) any
}

type stmt interface {
	exec(in *interp, e *env) (flow, any)
}

type flow uint8

const (
	flowNext flow = iota
	flowReturn
	flowBreak
	flowContinue
)

type (
	litExpr struct {
		v any
	}
	identExpr struct {
		name string
	}
	templateExpr struct {
		quasis []string
		exprs  []expr
	}
	arrayExpr struct {
		elems  []expr
		spread []bool
	}
	objectProp struct {
		key      string
		computed expr
		value    expr
		spread   bool
	}
	objectExpr struct {
		props []objectProp
	}
	memberExpr struct {
		obj      expr
		name     string
		index    expr
		optional bool
	}
	callExpr struct {
		callee   expr
		args     []expr
		spread   []bool
		optional bool
	}
	newExpr struct {
		callee expr
		args   []expr
	}
	funcExpr struct {
		name   string
		params []param
		body   expr
		block  *blockStmt
	}
	unaryExpr struct {
		op string
		x  expr
	}
	updateExpr struct {
		op     string
		prefix bool
		target expr
	}
	binaryExpr struct {
		op   string
		l, r expr
	}
	logicalExpr struct {
		op   string
		l, r expr
	}
	condExpr struct {
		test, then, els expr
	}
	assignExpr struct {
		op     string
		target expr
		value  expr
	}
	awaitExpr struct {
		x expr
	}
)

type param struct {
	name    string
	pattern *pattern
	def     expr
	rest    bool
}

// pattern is a destructuring target: {a, b: c} or [a, b].
type pattern struct {
	object bool
	names  []string
	keys   []string
	rest   string
}

type (
	exprStmt struct {
		x expr
	}
	varDecl struct {
		name    string
		pattern *pattern
		init    expr
	}
	varStmt struct {
		kind  string
		decls []varDecl
	}
	returnStmt struct {
		x expr
	}
	ifStmt struct {
		test expr
		then stmt
		els  stmt
	}
	forOfStmt struct {
		kind    string
		name    string
		pattern *pattern
		in      bool
		iter    expr
		body    stmt
	}
	forStmt struct {
		init   stmt
		test   expr
		update expr
		body   stmt
	}
	whileStmt struct {
		test expr
		body stmt
	}
	blockStmt struct {
		list []stmt
	}
	breakStmt    struct{}
	continueStmt struct{}
	throwStmt    struct {
		x expr
	}
	tryStmt struct {
		block    *blockStmt
		param    string
		handler  *blockStmt
		finalize *blockStmt
	}
	funcDecl struct {
		fn *funcExpr
	}
	emptyStmt struct{}
)
