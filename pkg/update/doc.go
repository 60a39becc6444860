// Package update compares the version of an AppImage the user opened with
// the version already installed and phrases the result for a prompt.
//
// Version model
//   - Versions are parsed leniently with github.com/hashicorp/go-version, so
//     "1.2", "v1.2.3", "1.2.3-rc1" and "1.2.3+build5" all compare.
//   - Prerelease precedence follows SemVer: "1.2.3-rc1" < "1.2.3".
//   - Empty versions and rolling labels such as "continuous", "nightly" or
//     "dev" are not comparable; the relation is then RelationUnknown unless
//     both strings are identical.
package update
