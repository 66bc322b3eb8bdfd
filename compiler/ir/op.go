package ir

type (
	Op int

	opInfo struct {
		name string

		in     int  // stack operands consumed
		labels int  // trailing label operands; -1 means variadic
		out    bool // produces a value

		term     bool // ends a basic block
		volatile bool // has side effects, never elided
		barrier  bool // escapes memory analysis (calls, creates)

		mnem string // direct EVM mnemonic, "" for pseudo ops
	}
)

const (
	Invalid Op = iota

	// pseudo
	Assign
	Phi
	Alloca
	Palloca
	Calloca
	Gep

	// control
	Jmp
	Jnz
	Djmp
	Invoke
	Ret
	Stop
	Return
	Revert

	// arithmetic and logic
	Add
	Sub
	Mul
	Div
	Sdiv
	Mod
	Smod
	Addmod
	Mulmod
	Exp
	Signextend
	Lt
	Gt
	Slt
	Sgt
	Eq
	Iszero
	And
	Or
	Xor
	Not
	Byte
	Shl
	Shr
	Sar
	Sha3

	// memory, storage, calldata
	Mload
	Mstore
	Sload
	Sstore
	Tload
	Tstore
	Calldataload
	Calldatacopy
	Codecopy
	Returndatacopy
	Mcopy

	// environment
	Address
	Balance
	Origin
	Caller
	Callvalue
	Calldatasize
	Codesize
	Gasprice
	Extcodesize
	Extcodehash
	Returndatasize
	Blockhash
	Coinbase
	Timestamp
	Number
	Prevrandao
	Gaslimit
	Chainid
	Selfbalance
	Basefee
	Gas
	Msize

	// calls and creation
	Call
	Delegatecall
	Staticcall
	Create
	Create2
	Selfdestruct
	Log0
	Log1
	Log2
	Log3
	Log4

	opsCount
)

var ops = [opsCount]opInfo{
	Invalid: {name: "invalid"},

	Assign:  {name: "assign", in: 1, out: true},
	Phi:     {name: "phi", in: -1, labels: -1, out: true},
	Alloca:  {name: "alloca", in: 3, out: true},
	Palloca: {name: "palloca", in: 3, out: true},
	Calloca: {name: "calloca", in: 3, out: true},
	Gep:     {name: "gep", in: 2, out: true},

	Jmp:    {name: "jmp", labels: 1, term: true, volatile: true},
	Jnz:    {name: "jnz", in: 1, labels: 2, term: true, volatile: true},
	Djmp:   {name: "djmp", in: 1, labels: -1, term: true, volatile: true},
	Invoke: {name: "invoke", in: -1, labels: 1, out: true, volatile: true, barrier: true},
	Ret:    {name: "ret", in: -1, term: true, volatile: true},
	Stop:   {name: "stop", term: true, volatile: true, barrier: true, mnem: "STOP"},
	Return: {name: "return", in: 2, term: true, volatile: true, barrier: true, mnem: "RETURN"},
	Revert: {name: "revert", in: 2, term: true, volatile: true, mnem: "REVERT"},

	Add:        {name: "add", in: 2, out: true, mnem: "ADD"},
	Sub:        {name: "sub", in: 2, out: true, mnem: "SUB"},
	Mul:        {name: "mul", in: 2, out: true, mnem: "MUL"},
	Div:        {name: "div", in: 2, out: true, mnem: "DIV"},
	Sdiv:       {name: "sdiv", in: 2, out: true, mnem: "SDIV"},
	Mod:        {name: "mod", in: 2, out: true, mnem: "MOD"},
	Smod:       {name: "smod", in: 2, out: true, mnem: "SMOD"},
	Addmod:     {name: "addmod", in: 3, out: true, mnem: "ADDMOD"},
	Mulmod:     {name: "mulmod", in: 3, out: true, mnem: "MULMOD"},
	Exp:        {name: "exp", in: 2, out: true, mnem: "EXP"},
	Signextend: {name: "signextend", in: 2, out: true, mnem: "SIGNEXTEND"},
	Lt:         {name: "lt", in: 2, out: true, mnem: "LT"},
	Gt:         {name: "gt", in: 2, out: true, mnem: "GT"},
	Slt:        {name: "slt", in: 2, out: true, mnem: "SLT"},
	Sgt:        {name: "sgt", in: 2, out: true, mnem: "SGT"},
	Eq:         {name: "eq", in: 2, out: true, mnem: "EQ"},
	Iszero:     {name: "iszero", in: 1, out: true, mnem: "ISZERO"},
	And:        {name: "and", in: 2, out: true, mnem: "AND"},
	Or:         {name: "or", in: 2, out: true, mnem: "OR"},
	Xor:        {name: "xor", in: 2, out: true, mnem: "XOR"},
	Not:        {name: "not", in: 1, out: true, mnem: "NOT"},
	Byte:       {name: "byte", in: 2, out: true, mnem: "BYTE"},
	Shl:        {name: "shl", in: 2, out: true, mnem: "SHL"},
	Shr:        {name: "shr", in: 2, out: true, mnem: "SHR"},
	Sar:        {name: "sar", in: 2, out: true, mnem: "SAR"},
	Sha3:       {name: "sha3", in: 2, out: true, mnem: "SHA3"},

	Mload:          {name: "mload", in: 1, out: true, mnem: "MLOAD"},
	Mstore:         {name: "mstore", in: 2, volatile: true, mnem: "MSTORE"},
	Sload:          {name: "sload", in: 1, out: true, mnem: "SLOAD"},
	Sstore:         {name: "sstore", in: 2, volatile: true, mnem: "SSTORE"},
	Tload:          {name: "tload", in: 1, out: true, mnem: "TLOAD"},
	Tstore:         {name: "tstore", in: 2, volatile: true, mnem: "TSTORE"},
	Calldataload:   {name: "calldataload", in: 1, out: true, mnem: "CALLDATALOAD"},
	Calldatacopy:   {name: "calldatacopy", in: 3, volatile: true, mnem: "CALLDATACOPY"},
	Codecopy:       {name: "codecopy", in: 3, volatile: true, mnem: "CODECOPY"},
	Returndatacopy: {name: "returndatacopy", in: 3, volatile: true, mnem: "RETURNDATACOPY"},
	Mcopy:          {name: "mcopy", in: 3, volatile: true, mnem: "MCOPY"},

	Address:        {name: "address", out: true, mnem: "ADDRESS"},
	Balance:        {name: "balance", in: 1, out: true, mnem: "BALANCE"},
	Origin:         {name: "origin", out: true, mnem: "ORIGIN"},
	Caller:         {name: "caller", out: true, mnem: "CALLER"},
	Callvalue:      {name: "callvalue", out: true, mnem: "CALLVALUE"},
	Calldatasize:   {name: "calldatasize", out: true, mnem: "CALLDATASIZE"},
	Codesize:       {name: "codesize", out: true, mnem: "CODESIZE"},
	Gasprice:       {name: "gasprice", out: true, mnem: "GASPRICE"},
	Extcodesize:    {name: "extcodesize", in: 1, out: true, mnem: "EXTCODESIZE"},
	Extcodehash:    {name: "extcodehash", in: 1, out: true, mnem: "EXTCODEHASH"},
	Returndatasize: {name: "returndatasize", out: true, mnem: "RETURNDATASIZE"},
	Blockhash:      {name: "blockhash", in: 1, out: true, mnem: "BLOCKHASH"},
	Coinbase:       {name: "coinbase", out: true, mnem: "COINBASE"},
	Timestamp:      {name: "timestamp", out: true, mnem: "TIMESTAMP"},
	Number:         {name: "number", out: true, mnem: "NUMBER"},
	Prevrandao:     {name: "prevrandao", out: true, mnem: "PREVRANDAO"},
	Gaslimit:       {name: "gaslimit", out: true, mnem: "GASLIMIT"},
	Chainid:        {name: "chainid", out: true, mnem: "CHAINID"},
	Selfbalance:    {name: "selfbalance", out: true, mnem: "SELFBALANCE"},
	Basefee:        {name: "basefee", out: true, mnem: "BASEFEE"},
	Gas:            {name: "gas", out: true, mnem: "GAS"},
	Msize:          {name: "msize", out: true, mnem: "MSIZE"},

	Call:         {name: "call", in: 7, out: true, volatile: true, barrier: true, mnem: "CALL"},
	Delegatecall: {name: "delegatecall", in: 6, out: true, volatile: true, barrier: true, mnem: "DELEGATECALL"},
	Staticcall:   {name: "staticcall", in: 6, out: true, volatile: true, barrier: true, mnem: "STATICCALL"},
	Create:       {name: "create", in: 3, out: true, volatile: true, barrier: true, mnem: "CREATE"},
	Create2:      {name: "create2", in: 4, out: true, volatile: true, barrier: true, mnem: "CREATE2"},
	Selfdestruct: {name: "selfdestruct", in: 1, term: true, volatile: true, barrier: true, mnem: "SELFDESTRUCT"},
	Log0:         {name: "log0", in: 2, volatile: true, mnem: "LOG0"},
	Log1:         {name: "log1", in: 3, volatile: true, mnem: "LOG1"},
	Log2:         {name: "log2", in: 4, volatile: true, mnem: "LOG2"},
	Log3:         {name: "log3", in: 5, volatile: true, mnem: "LOG3"},
	Log4:         {name: "log4", in: 6, volatile: true, mnem: "LOG4"},
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, opsCount)

	for op := Invalid + 1; op < opsCount; op++ {
		m[ops[op].name] = op
	}

	return m
}()

func OpByName(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

func (op Op) String() string {
	if op <= Invalid || op >= opsCount {
		return "invalid"
	}

	return ops[op].name
}

func (op Op) StackIn() int      { return ops[op].in }
func (op Op) LabelIn() int      { return ops[op].labels }
func (op Op) HasOutput() bool   { return ops[op].out }
func (op Op) IsTerminator() bool { return ops[op].term }
func (op Op) Volatile() bool    { return ops[op].volatile }
func (op Op) Barrier() bool     { return ops[op].barrier }
func (op Op) Mnemonic() string  { return ops[op].mnem }
