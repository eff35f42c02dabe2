// Package query builds filtered, joined and paginated SELECT/COUNT statements
// with named placeholders and runs them through a db.Executor.
//
// Every value handed to a predicate is bound to a fresh placeholder
// (":objectParameter_N" for scalars, ":collectionParameter_N" for IN lists);
// values never appear in the SQL text. A predicate whose value is absent
// renders nothing, so filters can be applied unconditionally:
//
//	users := query.NewTable[User]("users", "u")
//	b := query.NewBuilder(users, session, db.StructMapper[User]())
//	b.AndEquals("role", "USER").AndEquals("active", true).SetLimit(3).SetOffset(0)
//	// SELECT * FROM users u WHERE (u.role = :objectParameter_0) AND (u.active = :objectParameter_1) LIMIT 3 OFFSET 0
//
// SECURITY WARNING:
// Table names, aliases, column names and JOIN conditions are written into the
// statement verbatim. They must come from code, never from user input. User
// input belongs in predicate values only.
package query
