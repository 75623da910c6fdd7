/*
Package bootstrap builds the script loaded into every sandbox before a
chapter's payload.

The site ships an anti-tamper loader (rguard.min.js) that inspects browser
globals and stalls or throws when they are missing. A Program wraps that loader
between a neutralizer, which swaps document, window, console, $ and location
for inert proxies, and an atob polyfill. Compilation is expensive, so Cache
keeps one Program per process and only rebuilds when a page points at a
different loader URL:

	cache := bootstrap.NewCache(client, cfg.Site.BootstrapURL(), logger, metrics)
	cache.ObserveSourceURL(hintFromPage)

	program, err := cache.Get(ctx)
	if err != nil {
		return err
	}
	err = runtime.Load(ctx, program.Compiled())
*/
package bootstrap
