/*
Package readcomic reads comics from readcomiconline.

Listings, search results and comic pages are parsed with CSS selectors. A
chapter page carries its image list inside an obfuscated inline script; Pages
finds that script, reports the page's anti-tamper loader URL to the bootstrap
cache and hands the script to the extractor.

Search has two forms. With a query or genre filter it uses /AdvanceSearch.
Otherwise it lists by publisher, writer or artist (first non-empty wins) or the
full catalog, ordered by the selected sort.
*/
package readcomic
